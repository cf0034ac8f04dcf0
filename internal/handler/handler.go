// Package handler is the Lambda entry point of the proxy.
//
// Every invocation produces an outer response with status 200 and CORS
// headers. The VWS outcome, including failures, is the JSON body:
// {"status": <code>, "response": <value>}. Callers read the inner status.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/psanford/vwssigner/internal/router"
	"github.com/psanford/vwssigner/internal/vws"
	"github.com/sirupsen/logrus"
)

// maxEventBytes matches the API Gateway payload limit.
const maxEventBytes = 10 << 20

var errNullBody = errors.New("event body is null")

// CORSHeaders returns the headers sent with every response.
func CORSHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
		"Access-Control-Allow-Methods": "OPTIONS,POST,GET,DELETE",
		"Content-Type":                 "application/json",
	}
}

// Processor serves one parsed envelope. *router.Router implements it.
type Processor interface {
	Process(ctx context.Context, method, path string, body router.Body) vws.Result
}

type Handler struct {
	p   Processor
	log logrus.FieldLogger
}

func New(p Processor, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{p: p, log: log}
}

// Envelope is the proxy request carried in an event.
type Envelope struct {
	Method string
	Path   string
	Body   router.Body
}

type envelopeJSON struct {
	HTTPMethod  string          `json:"http_method"`
	Path        string          `json:"path"`
	RequestBody json.RawMessage `json:"request_body"`
}

// ParseEvent extracts the Envelope from a Lambda event. The envelope is the
// event's body field, either as an object or as a JSON-encoded string; an
// event without a body field is itself the envelope.
func ParseEvent(event []byte) (Envelope, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(event, &outer); err != nil {
		return Envelope{}, fmt.Errorf("decode event: %w", err)
	}

	raw := json.RawMessage(event)
	if b, ok := outer["body"]; ok {
		b = bytes.TrimSpace(b)
		switch {
		case bytes.Equal(b, []byte("null")):
			return Envelope{}, errNullBody
		case len(b) > 0 && b[0] == '"':
			var s string
			if err := json.Unmarshal(b, &s); err != nil {
				return Envelope{}, fmt.Errorf("decode event body: %w", err)
			}
			raw = json.RawMessage(s)
		default:
			raw = b
		}
	}

	var env envelopeJSON
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	body, err := router.ParseBody(env.RequestBody)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Method: strings.ToUpper(env.HTTPMethod),
		Path:   env.Path,
		Body:   body,
	}, nil
}

// Handle is the function passed to lambda.Start. It never returns an error.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (events.APIGatewayProxyResponse, error) {
	return h.Invoke(ctx, event), nil
}

// Invoke runs one event through the router and wraps the Result.
func (h *Handler) Invoke(ctx context.Context, event []byte) events.APIGatewayProxyResponse {
	return respond(h.result(ctx, event))
}

func (h *Handler) result(ctx context.Context, event []byte) (res vws.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			h.log.WithError(err).Error("handler panic")
			res = vws.Failure(err)
		}
	}()

	h.log.WithField("bytes", len(event)).Debugf("event:\n%s", event)

	env, err := ParseEvent(event)
	if err != nil {
		h.log.WithError(err).Error("handler error")
		return vws.Failure(err)
	}

	h.log.WithFields(logrus.Fields{
		"method": env.Method,
		"path":   env.Path,
	}).Info("processed request")

	return h.p.Process(ctx, env.Method, env.Path, env.Body)
}

func respond(res vws.Result) events.APIGatewayProxyResponse {
	body, err := json.Marshal(res)
	if err != nil {
		body, _ = json.Marshal(vws.Failure(err))
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    CORSHeaders(),
		Body:       string(body),
	}
}

// ServeHTTP serves the handler over plain HTTP for local development. The
// request body is the event.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var resp events.APIGatewayProxyResponse
	switch r.Method {
	case http.MethodOptions:
		resp = events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: CORSHeaders()}
	default:
		event, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
		if err != nil {
			h.log.WithError(err).Error("read request")
			resp = respond(vws.Failure(err))
			break
		}
		resp = h.Invoke(r.Context(), event)
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	io.WriteString(w, resp.Body)
}
