package openai

import (
	"github.com/koscakluka/ema-realtime/core/realtime"
)

var (
	persistentCodes = map[string]struct{}{
		"invalid_api_key":    {},
		"insufficient_quota": {},
		"model_not_found":    {},
		"session_expired":    {},
	}
	transientCodes = map[string]struct{}{
		"rate_limit_exceeded": {},
		"server_error":        {},
	}
)

// classifyError maps an error frame onto a model error. Errors that concern a
// single command, like cancelling a response that already finished, are not
// connection failures and are reported as unclassified.
func classifyError(err *apiError) (*realtime.ModelError, bool) {
	if _, ok := persistentCodes[err.Code]; ok {
		return realtime.NewPersistentError(err.Code, err), true
	}
	if _, ok := transientCodes[err.Code]; ok {
		return realtime.NewTransientError(err.Code, err), true
	}

	switch err.Type {
	case "authentication_error", "permission_error":
		return realtime.NewPersistentError(err.Type, err), true
	case "server_error", "rate_limit_error":
		return realtime.NewTransientError(err.Type, err), true
	}
	return nil, false
}
