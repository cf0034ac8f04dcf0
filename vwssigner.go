package vwssigner

import (
	"hash"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/psanford/vwssigner/internal/vwssign"
)

// SignRequestHandlerName is the name of the aws-sdk-go Sign handler
// returned by Signer.NamedHandler.
const SignRequestHandlerName = "vwssigner.SignRequestHandler"

type Signer struct {
	AccessKey string
	// SecretKeyHmacSha1 should return a new hash.Hash every time it is called.
	// The key for this hmac must be the VWS server secret key.
	// A common implementation will be to return hmac.New() from this function.
	SecretKeyHmacSha1 func() hash.Hash
}

func (s *Signer) SignSDKRequest(req *request.Request) {
	s.SignSDKRequestWithOpts(req)
}

func (s *Signer) SignSDKRequestWithOpts(req *request.Request, opts ...Option) {
	signOpts := options{
		ts: time.Now(),
	}

	for _, opt := range opts {
		opt.setOption(&signOpts)
	}

	internalSigner := vwssign.Signer{
		AccessKey:         s.AccessKey,
		SecretKeyHmacSha1: s.SecretKeyHmacSha1,
	}

	internalSigner.SignRequest(req, signOpts.ts)
}

// NamedHandler wraps SignSDKRequest for pushing onto request.Handlers.Sign.
func (s *Signer) NamedHandler() request.NamedHandler {
	return request.NamedHandler{
		Name: SignRequestHandlerName,
		Fn:   s.SignSDKRequest,
	}
}

// Sign sets the Date and Authorization headers on r. body must contain the
// bytes that will be sent and may be nil for an empty body.
func (s *Signer) Sign(r *http.Request, body io.ReadSeeker, signTime time.Time) (http.Header, error) {
	internalSigner := vwssign.Signer{
		AccessKey:         s.AccessKey,
		SecretKeyHmacSha1: s.SecretKeyHmacSha1,
	}

	if _, err := internalSigner.SignHTTP(r, body, signTime); err != nil {
		return nil, err
	}

	return r.Header, nil
}

// Authorization computes the VWS Authorization header value for a request
// without building one.
func Authorization(accessKey, secretKey, method, body, contentType, date, path string) string {
	canonical := vwssign.CanonicalString(method, vwssign.ContentMD5([]byte(body)), contentType, date, NormalizePath(path))
	signature := vwssign.Signature(vwssign.HmacSha1(secretKey)(), canonical)
	return vwssign.AuthorizationHeader(accessKey, signature)
}

// FormatDate renders t as the RFC 1123 GMT date VWS signs over.
func FormatDate(t time.Time) string {
	return vwssign.FormatTime(t)
}

// NormalizePath prefixes path with a slash when it lacks one.
func NormalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

type options struct {
	ts time.Time
}

type Option interface {
	setOption(*options) error
}

type timeOpt struct {
	ts time.Time
}

func (o timeOpt) setOption(opts *options) error {
	opts.ts = o.ts
	return nil
}

// WithSignTime signs with ts instead of the current time.
func WithSignTime(ts time.Time) Option {
	return timeOpt{ts: ts}
}

func StaticSecretKeyHmac(secretKey string) func() hash.Hash {
	return vwssign.HmacSha1(secretKey)
}
