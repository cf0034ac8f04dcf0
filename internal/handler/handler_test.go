package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/psanford/vwssigner"
	"github.com/psanford/vwssigner/internal/router"
	"github.com/psanford/vwssigner/internal/vws"
	"github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type processed struct {
	Method string
	Path   string
	Body   router.Body
}

type recordingProcessor struct {
	calls []processed
	res   vws.Result
}

func (p *recordingProcessor) Process(ctx context.Context, method, path string, body router.Body) vws.Result {
	p.calls = append(p.calls, processed{Method: method, Path: path, Body: body})
	return p.res
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func decodeBody(t *testing.T, body string) vws.Result {
	t.Helper()
	var res vws.Result
	assert.NilError(t, json.Unmarshal([]byte(body), &res))
	return res
}

func okResult() vws.Result {
	return vws.Result{Status: http.StatusOK, Response: vws.ParsedBody{Value: map[string]interface{}{"result_code": "Success"}}}
}

func TestHandleBodyStringAndObject(t *testing.T) {
	events := []string{
		`{"body": "{\"http_method\": \"put\", \"path\": \"/targets/abc\", \"request_body\": {\"width\": \"5\"}}"}`,
		`{"body": {"http_method": "put", "path": "/targets/abc", "request_body": {"width": "5"}}}`,
		`{"http_method": "put", "path": "/targets/abc", "request_body": {"width": "5"}}`,
	}

	var bodies []string
	for _, event := range events {
		p := &recordingProcessor{res: okResult()}
		h := New(p, quietLogger())

		resp, err := h.Handle(context.Background(), json.RawMessage(event))
		assert.NilError(t, err)
		assert.Equal(t, resp.StatusCode, http.StatusOK)
		assert.DeepEqual(t, resp.Headers, CORSHeaders())

		assert.Assert(t, is.Len(p.calls, 1))
		assert.DeepEqual(t, p.calls[0], processed{
			Method: "PUT",
			Path:   "/targets/abc",
			Body:   router.Structured{"width": "5"},
		})

		bodies = append(bodies, resp.Body)
	}

	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[1], bodies[2])
	assert.Equal(t, bodies[0], `{"status":200,"response":{"result_code":"Success"}}`)
}

func TestParseEventDefaults(t *testing.T) {
	env, err := ParseEvent([]byte(`{"body": {"http_method": "get", "path": "/targets"}}`))
	assert.NilError(t, err)
	assert.Equal(t, env.Method, "GET")
	assert.Equal(t, env.Path, "/targets")
	assert.DeepEqual(t, env.Body, router.Structured{})

	env, err = ParseEvent([]byte(`{"body": {"http_method": "post", "path": "/targets", "request_body": null}}`))
	assert.NilError(t, err)
	assert.DeepEqual(t, env.Body, router.Empty{})
}

func TestHandleBadEventsStayOuter200(t *testing.T) {
	tests := []struct {
		name  string
		event string
		want  string
	}{
		{name: "not json", event: `nope`, want: "decode event"},
		{name: "null body", event: `{"body": null}`, want: "event body is null"},
		{name: "body string not json", event: `{"body": "nope"}`, want: "decode envelope"},
		{name: "method not a string", event: `{"body": {"http_method": 5, "path": "/targets"}}`, want: "decode envelope"},
		{name: "bad request body", event: `{"body": "{\"http_method\": \"GET\", \"request_body\": {\"a\": }}"}`, want: "decode envelope"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &recordingProcessor{}
			h := New(p, quietLogger())

			resp, err := h.Handle(context.Background(), json.RawMessage(tc.event))
			assert.NilError(t, err)
			assert.Equal(t, resp.StatusCode, http.StatusOK)
			assert.DeepEqual(t, resp.Headers, CORSHeaders())
			assert.Check(t, is.Len(p.calls, 0))

			res := decodeBody(t, resp.Body)
			assert.Equal(t, res.Status, http.StatusInternalServerError)
			assert.Equal(t, res.ResultCode(), vws.ResultCodeFail)

			obj := res.Response.(vws.ParsedBody).Value.(map[string]interface{})
			assert.Check(t, is.Contains(obj["error"].(string), tc.want))
		})
	}
}

func TestHandleNetworkFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "https://")
	httpClient := srv.Client()
	srv.Close()

	signer := &vwssigner.Signer{AccessKey: "AKID", SecretKeyHmacSha1: vwssigner.StaticSecretKeyHmac("SECRET")}
	c := vws.New(host, signer, vws.WithHTTPClient(httpClient), vws.WithLogger(quietLogger()))
	h := New(router.New(c, quietLogger()), quietLogger())

	resp, err := h.Handle(context.Background(), json.RawMessage(`{"body": {"http_method": "GET", "path": "/targets"}}`))
	assert.NilError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	res := decodeBody(t, resp.Body)
	assert.Equal(t, res.Status, http.StatusInternalServerError)
	assert.Equal(t, res.ResultCode(), vws.ResultCodeFail)
}

func TestHandleEndToEnd(t *testing.T) {
	var gotBody, gotMethod, gotPath string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotMethod, gotPath = string(b), r.Method, r.URL.Path
		io.WriteString(w, `{"result_code":"TargetStatusNotSuccess","transaction_id":"t1"}`)
	}))
	defer srv.Close()

	signer := &vwssigner.Signer{AccessKey: "AKID", SecretKeyHmacSha1: vwssigner.StaticSecretKeyHmac("SECRET")}
	c := vws.New(strings.TrimPrefix(srv.URL, "https://"), signer, vws.WithHTTPClient(srv.Client()), vws.WithLogger(quietLogger()))
	h := New(router.New(c, quietLogger()), quietLogger())

	event := `{"body": {"http_method": "PUT", "path": "/targets/abc", "request_body": {"name": "x", "width": "5", "active_flag": null}}}`
	resp, err := h.Handle(context.Background(), json.RawMessage(event))
	assert.NilError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	assert.Equal(t, gotMethod, "PUT")
	assert.Equal(t, gotPath, "/targets/abc")
	assert.Equal(t, gotBody, `{"name":"x","width":5.0}`)

	assert.Equal(t, resp.Body, `{"status":403,"response":{"result_code":"TargetStatusNotSuccess","transaction_id":"t1"}}`)
}

func TestServeHTTP(t *testing.T) {
	p := &recordingProcessor{res: okResult()}
	srv := httptest.NewServer(New(p, quietLogger()))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"http_method": "get", "path": "/targets"}`))
	assert.NilError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "*")
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Methods"), "OPTIONS,POST,GET,DELETE")

	b, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{"status":200,"response":{"result_code":"Success"}}`)
	assert.Assert(t, is.Len(p.calls, 1))
	assert.Equal(t, p.calls[0].Method, "GET")
}

func TestServeHTTPPreflight(t *testing.T) {
	p := &recordingProcessor{}
	srv := httptest.NewServer(New(p, quietLogger()))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL, nil)
	assert.NilError(t, err)
	resp, err := http.DefaultClient.Do(req)
	assert.NilError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token")
	assert.Check(t, is.Len(p.calls, 0))
}
