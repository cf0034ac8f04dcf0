package vws

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const (
	ResultCodeFail                   = "Fail"
	ResultCodeTargetStatusNotSuccess = "TargetStatusNotSuccess"
)

// Payload is the response half of a Result. It is either a ParsedBody or a
// RawBody.
type Payload interface {
	payload()
}

// ParsedBody holds a response body that decoded as JSON. Numbers are kept
// as json.Number so they re-encode unchanged.
type ParsedBody struct {
	Value interface{}
}

// RawBody holds a response body that was not valid JSON.
type RawBody string

func (ParsedBody) payload() {}
func (RawBody) payload()    {}

// Result is the uniform outcome of one VWS call.
type Result struct {
	Status   int
	Response Payload
}

type resultJSON struct {
	Status   int             `json:"status"`
	Response json.RawMessage `json:"response"`
}

// Failure reports err as a 500 Result with result_code Fail.
func Failure(err error) Result {
	return Result{
		Status: http.StatusInternalServerError,
		Response: ParsedBody{Value: map[string]interface{}{
			"result_code": ResultCodeFail,
			"error":       err.Error(),
		}},
	}
}

// ResultCode returns the result_code of an object response, or "".
func (r Result) ResultCode() string {
	p, ok := r.Response.(ParsedBody)
	if !ok {
		return ""
	}
	obj, ok := p.Value.(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := obj["result_code"].(string)
	return code
}

func (r Result) MarshalJSON() ([]byte, error) {
	var response interface{}
	switch p := r.Response.(type) {
	case ParsedBody:
		response = p.Value
	case RawBody:
		response = string(p)
	}

	raw, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}

	return json.Marshal(resultJSON{Status: r.Status, Response: raw})
}

// UnmarshalJSON decodes the JSON form of a Result. A string response
// becomes a RawBody; anything else is a ParsedBody.
func (r *Result) UnmarshalJSON(b []byte) error {
	var rj resultJSON
	if err := json.Unmarshal(b, &rj); err != nil {
		return err
	}

	r.Status = rj.Status

	var s string
	if err := json.Unmarshal(rj.Response, &s); err == nil {
		r.Response = RawBody(s)
		return nil
	}

	v, err := decodeJSON(rj.Response)
	if err != nil {
		return err
	}
	r.Response = ParsedBody{Value: v}
	return nil
}

// decodeResult maps an upstream status and body onto a Result. A
// TargetStatusNotSuccess result code is reported as 403 whatever the
// transport status was.
func decodeResult(status int, raw []byte) Result {
	v, err := decodeJSON(raw)
	if err != nil {
		return Result{Status: status, Response: RawBody(raw)}
	}

	res := Result{Status: status, Response: ParsedBody{Value: v}}
	if res.ResultCode() == ResultCodeTargetStatusNotSuccess {
		res.Status = http.StatusForbidden
	}
	return res
}

var errTrailingData = errors.New("invalid character after top-level value")

func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}
