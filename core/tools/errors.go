package tools

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRegistryFrozen = errors.New("tool registry is frozen")
	ErrInvalidTool    = errors.New("invalid tool")
)

type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindExecution        ErrorKind = "execution_failed"
	KindTimeout          ErrorKind = "timeout"
)

type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

func (e *UnknownToolError) Kind() ErrorKind { return KindUnknownTool }

type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// InvalidArgumentsError reports the first argument that failed validation.
// Field is empty when the payload as a whole could not be decoded.
type InvalidArgumentsError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid argument %q for tool %q: %s", e.Field, e.Tool, e.Reason)
}

func (e *InvalidArgumentsError) Kind() ErrorKind { return KindInvalidArguments }

type ToolExecutionError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

func (e *ToolExecutionError) Kind() ErrorKind { return KindExecution }

type ToolTimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %s", e.Tool, e.Timeout)
}

func (e *ToolTimeoutError) Kind() ErrorKind { return KindTimeout }

// KindOf returns the invocation error kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var kinded interface{ Kind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.Kind(), true
	}
	return "", false
}

// FallbackResult turns an invocation-level error into the text submitted to
// the model in place of a real result, so the model can tell the user the
// action could not be completed.
func FallbackResult(tool string, err error) string {
	kind, _ := KindOf(err)
	switch kind {
	case KindUnknownTool:
		return fmt.Sprintf("Error: the tool %q does not exist. Tell the user this action is not available.", tool)
	case KindInvalidArguments:
		return fmt.Sprintf("Error: the tool %q was called with invalid arguments (%s). Tell the user the request could not be completed.", tool, err.Error())
	case KindTimeout:
		return fmt.Sprintf("Error: the tool %q did not respond in time. Tell the user the action could not be completed right now.", tool)
	}
	if err == nil {
		return fmt.Sprintf("Error: the tool %q failed. Tell the user the action could not be completed.", tool)
	}
	return fmt.Sprintf("Error: the tool %q failed (%s). Tell the user the action could not be completed.", tool, err.Error())
}
