package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// FunctionResult is the outcome reported by a serverless function.
type FunctionResult struct {
	Success bool
	Message string
	Data    json.RawMessage
}

// UnmarshalJSON accepts the envelopes functions tend to return:
// {"success":true,"message":...}, {"ok":true}, {"error":"..."} or {"data":...}.
func (r *FunctionResult) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.Data = fields["data"]
	r.Message = readMessage(data)

	status, hasStatus := fields["success"]
	if !hasStatus {
		status, hasStatus = fields["ok"]
	}
	switch {
	case hasStatus:
		str := strings.ToLower(stringTrimQuotes(status))
		r.Success = str == "true" || str == "1" || str == "success"
	case fields["error"] != nil:
		r.Success = false
	default:
		r.Success = true
	}
	return nil
}

// Functions invokes the backend's serverless functions.
type Functions struct {
	t *transport
}

// Invoke calls function name with payload under token. Refusals reported by
// the function (4xx) come back as an unsuccessful result; transport failures
// and 5xx responses are returned as errors.
func (f *Functions) Invoke(ctx context.Context, name, token string, payload any) (*FunctionResult, error) {
	if name == "" {
		return nil, fmt.Errorf("invoke: function name is empty")
	}
	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = []byte("{}")
	}
	var result FunctionResult
	err = f.t.do(ctx, request{
		service:  "functions",
		resource: name,
		method:   http.MethodPost,
		path:     "/functions/v1/" + url.PathEscape(name),
		body:     body,
		token:    token,
	}, &result)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) || errors.Is(err, ErrTransient) {
			return nil, fmt.Errorf("invoke %s: %w", name, err)
		}
		msg := se.Message
		if msg == "" {
			msg = http.StatusText(se.Status)
		}
		return &FunctionResult{Success: false, Message: msg}, nil
	}
	return &result, nil
}
