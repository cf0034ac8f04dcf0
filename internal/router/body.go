package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errInvalidBody = errors.New("decode request_body: invalid JSON")

// Body is a request_body value, classified once at the edge.
type Body interface {
	body()
}

// Empty is an explicit JSON null.
type Empty struct{}

// Structured is a JSON object. Numbers are json.Number.
type Structured map[string]interface{}

// RawJSONText is any other JSON value, kept as its compact JSON text.
type RawJSONText string

func (Empty) body()       {}
func (Structured) body()  {}
func (RawJSONText) body() {}

// ParseBody classifies raw. An absent body (nil or empty raw) is an empty
// Structured map.
func ParseBody(raw json.RawMessage) (Body, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Structured{}, nil
	}

	if bytes.Equal(raw, []byte("null")) {
		return Empty{}, nil
	}

	if !json.Valid(raw) {
		return nil, errInvalidBody
	}

	if raw[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode request_body: %w", err)
		}
		return Structured(m), nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("decode request_body: %w", err)
	}
	return RawJSONText(buf.String()), nil
}
