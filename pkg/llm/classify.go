package llm

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/jllopis/relay/pkg/errors"
)

// ErrorFromStatus maps a provider HTTP status onto the client failure taxonomy.
// A zero status means the request never produced a response.
func ErrorFromStatus(provider string, status int, cause error) *errors.RelayError {
	var re *errors.RelayError
	switch {
	case status == 0:
		re = errors.New(errors.CodeNetwork, provider+" request failed", cause)
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		re = errors.New(errors.CodeQuota, provider+" quota exhausted", cause)
	case status == http.StatusRequestTimeout || status >= 500:
		re = errors.New(errors.CodeNetwork, provider+" unavailable", cause)
	default:
		re = errors.New(errors.CodeInvalidResponse, provider+" rejected the request", cause)
	}
	return re.WithContext("provider", provider).
		WithContext("status", status).
		WithAttribute("gen_ai.system", provider)
}

// Classify converts an arbitrary Chat error into a RelayError. Errors that are
// already classified pass through unchanged.
func Classify(provider string, err error) *errors.RelayError {
	if err == nil {
		return nil
	}
	var re *errors.RelayError
	if stderrors.As(err, &re) {
		return re
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, provider+" call timed out", err).
			WithContext("provider", provider)
	}
	// Anything unclassified never got a usable HTTP exchange.
	return ErrorFromStatus(provider, 0, err)
}
