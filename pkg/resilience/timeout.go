// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"time"

	"github.com/jllopis/relay/pkg/errors"
)

// DefaultCallTimeout bounds a single model client call.
const DefaultCallTimeout = 30 * time.Second

// TimeoutConfig controls timeout behavior.
type TimeoutConfig struct {
	// Duration is the maximum time allowed for the operation. Zero disables the bound.
	Duration time.Duration
}

// WithTimeoutValue executes fn with a timeout boundary. fn receives the
// bounded context and should honor it; if it does not, the call is
// abandoned and errors.CodeTimeout is returned anyway.
func WithTimeoutValue[T any](ctx context.Context, config TimeoutConfig, fn func(context.Context) (T, error)) (T, error) {
	if config.Duration <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, timeoutError(ctx, config)
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			// fn gave up because of our deadline; report it as such.
			return res.value, timeoutError(ctx, config)
		}
		return res.value, res.err
	}
}

func timeoutError(ctx context.Context, config TimeoutConfig) *errors.RelayError {
	return errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
		WithContext("timeout", config.Duration.String())
}
