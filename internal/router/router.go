// Package router maps proxy envelopes onto VWS calls.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/psanford/vwssigner"
	"github.com/psanford/vwssigner/internal/vws"
	"github.com/sirupsen/logrus"
)

const (
	targetsPath   = "/targets"
	targetsPrefix = "/targets/"
)

// Dispatcher sends one signed VWS request. *vws.Client implements it.
type Dispatcher interface {
	Do(ctx context.Context, method, path, body string) vws.Result
}

type Router struct {
	d   Dispatcher
	log logrus.FieldLogger
}

func New(d Dispatcher, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{d: d, log: log}
}

// Call is a concrete upstream request.
type Call struct {
	Method string
	Path   string
	Body   string
}

// Process routes and dispatches one request. It never panics or returns
// an error: local failures come back as 500 Fail results.
func (rt *Router) Process(ctx context.Context, method, path string, body Body) (res vws.Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			rt.log.WithError(err).Error("process request panic")
			res = vws.Failure(err)
		}
	}()

	call, err := Route(method, path, body)
	if err != nil {
		rt.log.WithError(err).WithField("method", method).WithField("path", path).Error("process request error")
		return vws.Failure(err)
	}

	return rt.d.Do(ctx, call.Method, call.Path, call.Body)
}

// Route decides which upstream call serves (method, path, body). Rules are
// checked in order; the first match wins.
func Route(method, path string, body Body) (Call, error) {
	path = vwssigner.NormalizePath(path)

	switch {
	case method == "PUT" && strings.HasPrefix(path, targetsPrefix):
		b, err := updateBody(body)
		if err != nil {
			return Call{}, err
		}
		return Call{Method: "PUT", Path: path, Body: b}, nil

	case method == "POST" && path == targetsPath:
		b, err := serialize(body)
		if err != nil {
			return Call{}, err
		}
		return Call{Method: "POST", Path: targetsPath, Body: b}, nil

	case method == "GET" && path == targetsPath:
		return Call{Method: "GET", Path: targetsPath}, nil

	case method == "DELETE" && strings.HasPrefix(path, targetsPrefix):
		return Call{Method: "DELETE", Path: targetsPrefix + targetID(path)}, nil

	case method == "GET" && strings.HasPrefix(path, targetsPrefix):
		return Call{Method: "GET", Path: targetsPrefix + targetID(path)}, nil
	}

	b, err := passthrough(body)
	if err != nil {
		return Call{}, err
	}
	return Call{Method: method, Path: path, Body: b}, nil
}

// targetID returns the segment between the first "/targets/" and the next
// one, if any.
func targetID(path string) string {
	return strings.Split(path, targetsPrefix)[1]
}

// updateBody drops null fields and coerces width to a float. Only objects
// are sent; any other body becomes empty.
func updateBody(body Body) (string, error) {
	m, ok := body.(Structured)
	if !ok {
		return "", nil
	}

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}

	if w, ok := out["width"]; ok {
		f, err := toFloat(w)
		if err != nil {
			return "", fmt.Errorf("width: %w", err)
		}
		out["width"] = floatValue(f)
	}

	return marshal(out)
}

func serialize(body Body) (string, error) {
	switch b := body.(type) {
	case Structured:
		return marshal(map[string]interface{}(b))
	case RawJSONText:
		return string(b), nil
	default:
		return "null", nil
	}
}

func passthrough(body Body) (string, error) {
	switch b := body.(type) {
	case Structured:
		return marshal(map[string]interface{}(b))
	case RawJSONText:
		var s string
		if err := json.Unmarshal([]byte(b), &s); err == nil {
			return s, nil
		}
		return string(b), nil
	default:
		return "", nil
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case floatValue:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: %q", n)
		}
		return f, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

// floatValue always encodes with a fractional part or exponent, so an
// integral width is sent as 5.0 rather than 5.
type floatValue float64

func (f floatValue) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(float64(f))
	if err != nil {
		return nil, err
	}
	if !bytes.ContainsAny(b, ".eE") {
		b = append(b, '.', '0')
	}
	return b, nil
}

func marshal(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
