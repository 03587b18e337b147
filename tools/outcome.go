package tools

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/tidwall/sjson"
)

// Error codes reported to the model in the tool outcome payload.
const (
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeToolError        = "TOOL_ERROR"
	CodeToolFailed       = "TOOL_FAILED"
)

// ErrToolResult is returned when the provider flags the tool result as an error.
var ErrToolResult = errors.New("tool returned error result")

// Invocation is a single tool call requested by the model.
type Invocation struct {
	CallID string
	// Name is the namespaced tool name
	Name string
	// Arguments is the raw JSON text produced by the model
	Arguments string
}

// Outcome is the result of an Invocation.
// Every Invocation produces exactly one Outcome.
type Outcome struct {
	CallID string
	Name   string
	// Payload is JSON text
	Payload string
	// ErrorCode is empty on success
	ErrorCode string
}

// Failed returns true if the outcome carries an error.
func (o Outcome) Failed() bool {
	return o.ErrorCode != ""
}

// Succeeded returns the outcome with the payload.
func Succeeded(inv Invocation, payload string) Outcome {
	if payload == "" {
		payload = "{}"
	}
	return Outcome{
		CallID:  inv.CallID,
		Name:    inv.Name,
		Payload: payload,
	}
}

// Failed returns the outcome with the error payload.
// The message is omitted when err is nil.
func Failed(inv Invocation, code string, err error) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{
		CallID:    inv.CallID,
		Name:      inv.Name,
		Payload:   ErrorPayload(code, msg),
		ErrorCode: code,
	}
}

// NewOutcome returns the outcome of the tool call.
// The error is classified by errors.Is into the error code.
func NewOutcome(inv Invocation, payload string, err error) Outcome {
	switch {
	case err == nil:
		return Succeeded(inv, payload)
	case errors.Is(err, schema.ErrInvalidArguments):
		return Failed(inv, CodeInvalidArguments, err)
	case errors.Is(err, ErrToolResult):
		return Failed(inv, CodeToolError, err)
	}
	return Failed(inv, CodeToolFailed, err)
}

// ResultError returns the error with the provider message,
// that satisfies errors.Is(err, ErrToolResult).
func ResultError(message string) error {
	if message == "" {
		return ErrToolResult
	}
	return errors.Mark(errors.New(message), ErrToolResult)
}

// ErrorPayload returns {"error":code,"message":message}
func ErrorPayload(code, message string) string {
	js, _ := sjson.Set("{}", "error", code)
	if message != "" {
		js, _ = sjson.Set(js, "message", message)
	}
	return js
}

// WrapResult returns the text as JSON object {"result":text}
func WrapResult(text string) string {
	js, _ := sjson.Set("{}", "result", text)
	return js
}
