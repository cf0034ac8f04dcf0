// Command vwsproxy signs proxy envelopes and relays them to Vuforia Web
// Services. It runs under the AWS Lambda runtime, or as a local HTTP server
// with --listen.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/psanford/vwssigner"
	"github.com/psanford/vwssigner/internal/config"
	"github.com/psanford/vwssigner/internal/handler"
	"github.com/psanford/vwssigner/internal/router"
	"github.com/psanford/vwssigner/internal/vws"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Fatal("vwsproxy failed")
	}
}

func newRootCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:           "vwsproxy",
		Short:         "Sign and relay requests to Vuforia Web Services",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd.Flags(), &cfg); err != nil {
				return err
			}
			return run(cmd.Context(), listen, cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&listen, "listen", "", "Serve over HTTP on this address instead of the Lambda runtime")
	fs.String("host", vws.DefaultHost, "VWS host (overrides "+config.EnvHost+")")
	fs.Duration("timeout", vws.DefaultTimeout, "Upstream request timeout (overrides "+config.EnvTimeout+")")
	fs.String("log-level", "info", "Log level (overrides "+config.EnvLogLevel+")")

	return cmd
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("host") {
		host, err := fs.GetString("host")
		if err != nil {
			return err
		}
		cfg.Credentials.Host = host
	}
	if fs.Changed("timeout") {
		d, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("--timeout must be positive, got %s", d)
		}
		cfg.Timeout = d
	}
	if fs.Changed("log-level") {
		v, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		lvl, err := logrus.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	return nil
}

func run(ctx context.Context, listen string, cfg config.Config) error {
	log := logrus.StandardLogger()
	log.SetLevel(cfg.LogLevel)
	if listen == "" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Warn("vws credentials incomplete")
	}
	log.WithField("credentials", cfg.Credentials.String()).Info("starting vwsproxy")

	signer := &vwssigner.Signer{
		AccessKey:         cfg.Credentials.AccessKey,
		SecretKeyHmacSha1: vwssigner.StaticSecretKeyHmac(cfg.Credentials.SecretKey),
	}
	client := vws.New(cfg.Credentials.Host, signer, vws.WithTimeout(cfg.Timeout), vws.WithLogger(log))
	h := handler.New(router.New(client, log), log)

	if listen == "" {
		lambda.Start(h.Handle)
		return nil
	}

	return serve(ctx, listen, h, log)
}

func serve(ctx context.Context, addr string, h http.Handler, log logrus.FieldLogger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
