package invoke

import (
	"context"
	"errors"
	"fmt"
)

// ErrEncodeRequest means the request payload could not be serialized.
// It is never retried.
var ErrEncodeRequest = errors.New("serialize input failed")

// Request is the payload sent to the remote function. RequestID is
// generated once per InvokeUntilSuccess call and reused by every retry.
type Request struct {
	Key       string `json:"key"`
	RequestID string `json:"request_id"`
}

// NewRequest builds the fixed payload {"key":"value","request_id":id}.
func NewRequest(requestID string) Request {
	return Request{Key: "value", RequestID: requestID}
}

// Response is what a completed call returned. FunctionError is set when the
// function ran but reported a failure of its own.
type Response struct {
	Payload       []byte
	FunctionError string
	StatusCode    int
}

// Invoker calls a remote compute target synchronously (request/response).
// A non-nil error is a transport-level failure: the call itself did not
// complete.
type Invoker interface {
	Invoke(ctx context.Context, target string, payload []byte) (*Response, error)
}

// FunctionError reports that the target executed and signalled failure.
type FunctionError struct {
	Target string
	Kind   string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s crashed: %s", e.Target, e.Kind)
}

// TransportError reports that the invoke call could not be completed.
type TransportError struct {
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("invoking %s failed: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
