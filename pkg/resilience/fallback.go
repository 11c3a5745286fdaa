// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
)

// FallbackStrategy produces a substitute value when a primary operation fails.
type FallbackStrategy[T any] interface {
	// Execute runs the fallback operation.
	Execute(ctx context.Context, primaryErr error) (T, error)
}

// FallbackFunc wraps a function as a FallbackStrategy.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// Execute implements FallbackStrategy.
func (f FallbackFunc[T]) Execute(ctx context.Context, err error) (T, error) {
	return f(ctx, err)
}

// WithFallback executes fn and, on error, defers to the fallback strategy.
// The boolean result reports whether the fallback produced the value.
func WithFallback[T any](ctx context.Context, fn func(context.Context) (T, error), fallback FallbackStrategy[T]) (T, bool, error) {
	value, err := fn(ctx)
	if err == nil {
		return value, false, nil
	}
	if fallback == nil {
		return value, false, err
	}
	value, fbErr := fallback.Execute(ctx, err)
	if fbErr != nil {
		return value, true, fbErr
	}
	return value, true, nil
}
