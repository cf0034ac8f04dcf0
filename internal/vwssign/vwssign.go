package vwssign

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/request"
)

type Signer struct {
	// SecretKeyHmacSha1 should return a new hash.Hash every time it is called.
	// The key for this hmac must be the VWS server secret key.
	// A common implementation will be to return hmac.New() from this function.
	SecretKeyHmacSha1 func() hash.Hash
	AccessKey         string
}

// SignRequest signs an aws-sdk-go request in place. It is meant to be
// pushed onto a client's Sign handler list.
func (s *Signer) SignRequest(req *request.Request, ts time.Time) {
	_, err := s.SignHTTP(req.HTTPRequest, req.GetBody(), ts)
	if err != nil {
		req.Error = err
		return
	}

	req.LastSignedAt = ts
}

// SignHTTP sets the Date and Authorization headers on req and returns the
// Authorization value. body must hold the exact bytes that will be sent; it
// is rewound to its starting offset before returning.
func (s *Signer) SignHTTP(req *http.Request, body io.ReadSeeker, signTime time.Time) (string, error) {
	ctx := &signingCtx{
		Request:       req,
		Body:          body,
		Time:          signTime,
		AccessKey:     s.AccessKey,
		SecretKeyHMAC: s.SecretKeyHmacSha1,
	}

	if err := ctx.build(); err != nil {
		return "", err
	}

	return ctx.authorization, nil
}

type signingCtx struct {
	Request *http.Request
	Body    io.ReadSeeker
	Time    time.Time

	bodyDigest      string
	canonicalString string
	signature       string
	authorization   string

	SecretKeyHMAC func() hash.Hash
	AccessKey     string
}

func (ctx *signingCtx) build() error {
	ctx.buildTime() // no depends

	if err := ctx.buildBodyDigest(); err != nil {
		return err
	}

	ctx.buildCanonicalString() // depends on body digest / date
	ctx.buildSignature()       // depends on canon string

	ctx.authorization = AuthorizationHeader(ctx.AccessKey, ctx.signature)
	ctx.Request.Header.Set(authorizationHeader, ctx.authorization)

	return nil
}

func (ctx *signingCtx) buildTime() {
	ctx.Request.Header.Set(dateHeader, FormatTime(ctx.Time))
}

// FormatTime renders t the way VWS expects it in the Date header.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func (ctx *signingCtx) buildBodyDigest() error {
	if ctx.Body == nil {
		ctx.bodyDigest = emptyStringMD5
		return nil
	}

	hashBytes, err := makeMD5Reader(ctx.Body)
	if err != nil {
		return err
	}
	ctx.bodyDigest = hex.EncodeToString(hashBytes)

	return nil
}

func makeMD5Reader(reader io.ReadSeeker) (hashBytes []byte, err error) {
	hash := md5.New()
	start, err := reader.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	defer func() {
		// ensure error is return if unable to seek back to start of payload.
		if _, serr := reader.Seek(start, io.SeekStart); serr != nil && err == nil {
			err = serr
		}
	}()

	if _, err := io.Copy(hash, reader); err != nil {
		return nil, err
	}

	return hash.Sum(nil), nil
}

func (ctx *signingCtx) buildCanonicalString() {
	ctx.canonicalString = CanonicalString(
		ctx.Request.Method,
		ctx.bodyDigest,
		ctx.Request.Header.Get(contentTypeHeader),
		ctx.Request.Header.Get(dateHeader),
		getURIPath(ctx.Request.URL),
	)
}

func (ctx *signingCtx) buildSignature() {
	ctx.signature = Signature(ctx.SecretKeyHMAC(), ctx.canonicalString)
}

// ContentMD5 returns the lowercase hex MD5 of body.
func ContentMD5(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalString joins the signed request fields in the fixed order VWS
// verifies them.
func CanonicalString(method, contentMD5, contentType, date, path string) string {
	return strings.Join([]string{
		method,
		contentMD5,
		contentType,
		date,
		path,
	}, "\n")
}

// Signature writes canonical to mac and returns the base64 digest. mac must
// be freshly created.
func Signature(mac hash.Hash, canonical string) string {
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func AuthorizationHeader(accessKey, signature string) string {
	return authHeaderPrefix + " " + accessKey + ":" + signature
}

func HmacSha1(secretKey string) func() hash.Hash {
	return func() hash.Hash {
		return hmac.New(sha1.New, []byte(secretKey))
	}
}

func getURIPath(u *url.URL) string {
	var uri string

	if len(u.Opaque) > 0 {
		uri = "/" + strings.Join(strings.Split(u.Opaque, "/")[3:], "/")
	} else {
		uri = u.EscapedPath()
	}

	if len(uri) == 0 {
		uri = "/"
	}

	if u.RawQuery != "" {
		uri += "?" + u.RawQuery
	}

	return uri
}
