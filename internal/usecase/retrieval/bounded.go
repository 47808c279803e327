package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
)

type outcome[T any] struct {
	val T
	err error
}

// bounded runs fn under timeout. A call that ignores cancellation is abandoned
// and its late result discarded. A panic in fn becomes an error wrapping sentinel;
// running out of time yields domain.ErrCapabilityTimeout.
func bounded[T any](
	ctx context.Context, timeout time.Duration, sentinel error, fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%w: panic: %v", sentinel, r)}
			}
		}()
		v, err := fn(bctx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil {
			return o.val, nil
		}
		if errors.Is(o.err, context.DeadlineExceeded) && !errors.Is(o.err, domain.ErrCapabilityTimeout) {
			return zero, fmt.Errorf("%w: %w", domain.ErrCapabilityTimeout, o.err)
		}
		return zero, o.err
	case <-bctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w: no reply after %s: %w", domain.ErrCapabilityTimeout, timeout, bctx.Err())
	}
}
