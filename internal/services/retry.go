package services

import (
	"context"
	"time"

	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

// RetryableStore retries storage operations that failed with the transient
// sentinel. Validation and not-found outcomes propagate immediately. The
// delay grows linearly: baseDelay, 2*baseDelay, ...
type RetryableStore struct {
	log       *logger.Logger
	retries   int
	baseDelay time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryableStore(log *logger.Logger, retries int, baseDelay time.Duration) *RetryableStore {
	if retries < 1 {
		retries = 1
	}
	return &RetryableStore{
		log:       log.With("service", "RetryableStore"),
		retries:   retries,
		baseDelay: baseDelay,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *RetryableStore) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !apperr.IsTransientStore(err) {
			return err
		}
		lastErr = err
		if attempt == s.retries {
			break
		}
		delay := s.baseDelay * time.Duration(attempt)
		s.log.Warn("transient store failure, retrying",
			"attempt", attempt, "max_attempts", s.retries, "delay", delay.String(), "error", err.Error())
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return lastErr
}

// DoValue is Do for operations that return a result.
func DoValue[T any](ctx context.Context, s *RetryableStore, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := s.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
