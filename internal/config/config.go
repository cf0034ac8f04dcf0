// Package config loads the proxy's process-wide settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/psanford/vwssigner/internal/vws"
	"github.com/sirupsen/logrus"
)

const (
	EnvHost      = "VWS_HOSTNAME"
	EnvAccessKey = "VWS_ACCESS_KEY"
	EnvSecretKey = "VWS_SECRET_KEY"
	EnvTimeout   = "VWS_TIMEOUT"
	EnvLogLevel  = "VWS_LOG_LEVEL"
)

var (
	ErrMissingAccessKey = errors.New(EnvAccessKey + " is not set")
	ErrMissingSecretKey = errors.New(EnvSecretKey + " is not set")
)

// Credentials identify the proxy to VWS. They are read once at startup and
// never change.
type Credentials struct {
	AccessKey string
	SecretKey string
	Host      string
}

// String masks both keys so Credentials are safe to log. Only the last
// four characters of the access key are kept.
func (c Credentials) String() string {
	secret := ""
	if c.SecretKey != "" {
		secret = "REDACTED"
	}
	return fmt.Sprintf("host=%s access_key=%s secret_key=%s", c.Host, maskKey(c.AccessKey), secret)
}

func maskKey(k string) string {
	const visible = 4
	if len(k) <= visible {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-visible) + k[len(k)-visible:]
}

func (c Credentials) GoString() string {
	return "config.Credentials{" + c.String() + "}"
}

type Config struct {
	Credentials Credentials
	Timeout     time.Duration
	LogLevel    logrus.Level
}

// FromEnv reads Config from the process environment.
func FromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

// Load reads Config through lookup, which has the signature of
// os.LookupEnv.
func Load(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		Credentials: Credentials{
			AccessKey: get(EnvAccessKey, ""),
			SecretKey: get(EnvSecretKey, ""),
			Host:      get(EnvHost, vws.DefaultHost),
		},
		Timeout:  vws.DefaultTimeout,
		LogLevel: logrus.InfoLevel,
	}

	if v := get(EnvTimeout, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %s", EnvTimeout, d)
		}
		cfg.Timeout = d
	}

	if v := get(EnvLogLevel, ""); v != "" {
		lvl, err := logrus.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = lvl
	}

	return cfg, nil
}

// Validate reports missing keys. A Config that fails Validate still works;
// VWS rejects its requests with an authentication failure.
func (c Config) Validate() error {
	var errs []error
	if c.Credentials.AccessKey == "" {
		errs = append(errs, ErrMissingAccessKey)
	}
	if c.Credentials.SecretKey == "" {
		errs = append(errs, ErrMissingSecretKey)
	}
	return errors.Join(errs...)
}
