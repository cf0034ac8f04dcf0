// Package vws sends signed requests to Vuforia Web Services and maps the
// responses onto Results.
package vws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/client/metadata"
	"github.com/aws/aws-sdk-go/aws/corehandlers"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/psanford/vwssigner"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpguts"
)

const (
	ServiceName    = "vws"
	DefaultHost    = "vws.vuforia.com"
	DefaultTimeout = 30 * time.Second

	// Version is reported in the User-Agent header.
	Version = "1.0.0"

	contentType = "application/json"
	redacted    = "REDACTED"
)

var errMissingMethod = errors.New("request method is required")

// Client issues one signed HTTPS request per Do call. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	svc *client.Client
	log logrus.FieldLogger
}

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	log        logrus.FieldLogger
}

type Option func(*options)

// WithHTTPClient sends requests through c. The timeout option is ignored
// when a client is supplied.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Client for https://host signing with signer. An empty host
// means DefaultHost.
func New(host string, signer *vwssigner.Signer, opts ...Option) *Client {
	o := options{
		timeout: DefaultTimeout,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	if host == "" {
		host = DefaultHost
	}

	c := &Client{
		log: o.log.WithField("host", host),
	}

	cfg := aws.NewConfig().
		WithHTTPClient(httpClient).
		WithMaxRetries(0)

	info := metadata.ClientInfo{
		ServiceName: ServiceName,
		Endpoint:    "https://" + host,
	}

	// VWS speaks plain JSON over REST with its own signature, so none of
	// the AWS protocol handlers apply. Validation and retry lists stay
	// empty: every call is a single attempt.
	var handlers request.Handlers
	handlers.Build.PushBackNamed(request.NamedHandler{
		Name: "vws.UserAgentHandler",
		Fn:   request.MakeAddToUserAgentHandler("vwssigner", Version),
	})
	handlers.Build.PushBackNamed(buildHeadersHandler)
	handlers.Sign.PushBackNamed(corehandlers.BuildContentLengthHandler)
	handlers.Sign.PushBackNamed(signer.NamedHandler())
	handlers.Send.PushBackNamed(c.logRequestHandler())
	handlers.Send.PushBackNamed(corehandlers.SendHandler)
	handlers.Unmarshal.PushBackNamed(c.unmarshalHandler())

	c.svc = client.New(*cfg, info, handlers)

	return c
}

// Do sends method path with body to VWS. It always returns a Result:
// transport failures are reported as 500 Fail results.
func (c *Client) Do(ctx context.Context, method, path, body string) Result {
	if method == "" {
		return Failure(errMissingMethod)
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return Failure(fmt.Errorf("invalid request method %q", method))
	}

	path = vwssigner.NormalizePath(path)

	// The path is sent as given. Parsing it keeps existing escapes such as
	// %2F intact instead of escaping them a second time.
	u, err := url.Parse(path)
	if err != nil {
		return Failure(fmt.Errorf("invalid request path: %w", err))
	}

	op := &request.Operation{
		Name:       method + " " + path,
		HTTPMethod: method,
		HTTPPath:   path,
	}

	var res Result
	req := c.svc.NewRequest(op, nil, &res)
	req.SetContext(ctx)
	req.HTTPRequest.URL.Path = u.Path
	req.HTTPRequest.URL.RawPath = u.RawPath
	req.HTTPRequest.URL.RawQuery = u.RawQuery
	if body != "" {
		req.SetStringBody(body)
	}

	c.log.WithField("method", method).Infof("vws request body:\n%s", body)

	if err := req.Send(); err != nil {
		err = cause(err)
		c.log.WithError(err).WithField("method", method).WithField("path", path).Warn("vws request failed")
		return Failure(err)
	}

	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": res.Status,
	}).Info("vws response")

	return res
}

var buildHeadersHandler = request.NamedHandler{
	Name: "vws.BuildHeadersHandler",
	Fn: func(r *request.Request) {
		r.HTTPRequest.Header.Set("Content-Type", contentType)
	},
}

func (c *Client) logRequestHandler() request.NamedHandler {
	return request.NamedHandler{
		Name: "vws.LogRequestHandler",
		Fn: func(r *request.Request) {
			c.log.WithFields(logrus.Fields{
				"method":  r.HTTPRequest.Method,
				"url":     r.HTTPRequest.URL.String(),
				"headers": redactHeaders(r.HTTPRequest.Header),
			}).Info("making vws request")
		},
	}
}

func (c *Client) unmarshalHandler() request.NamedHandler {
	return request.NamedHandler{
		Name: "vws.UnmarshalHandler",
		Fn: func(r *request.Request) {
			defer r.HTTPResponse.Body.Close()

			raw, err := io.ReadAll(r.HTTPResponse.Body)
			if err != nil {
				r.Error = awserr.New(request.ErrCodeSerialization, "failed to read response body", err)
				return
			}

			c.log.WithField("status", r.HTTPResponse.StatusCode).Infof("vws response body:\n%s", raw)

			if out, ok := r.Data.(*Result); ok {
				*out = decodeResult(r.HTTPResponse.StatusCode, raw)
			}
		},
	}
}

func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out.Get("Authorization") != "" {
		out.Set("Authorization", redacted)
	}
	return out
}

// cause unwraps the aws-sdk-go error envelope so results report what
// actually failed.
func cause(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.OrigErr() != nil {
		return aerr.OrigErr()
	}
	return err
}
