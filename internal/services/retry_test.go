package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

func newTestRetryStore(t *testing.T, retries int, base time.Duration) (*RetryableStore, *[]time.Duration) {
	t.Helper()
	s := NewRetryableStore(logger.NewNop(), retries, base)
	var delays []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return s, &delays
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	s, delays := newTestRetryStore(t, 3, 500*time.Millisecond)

	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: conn reset", apperr.ErrTransientStore)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("sleeps: want=2 got=%d", len(*delays))
	}
	if !((*delays)[0] < (*delays)[1]) {
		t.Fatalf("delays not strictly increasing: %v", *delays)
	}
	if (*delays)[0] != 500*time.Millisecond || (*delays)[1] != 1000*time.Millisecond {
		t.Fatalf("linear backoff: want=[500ms 1s] got=%v", *delays)
	}
}

func TestRetryExhaustionReturnsLastTransient(t *testing.T) {
	s, delays := newTestRetryStore(t, 3, 100*time.Millisecond)

	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return fmt.Errorf("%w: attempt %d", apperr.ErrTransientStore, calls)
	})
	if !apperr.IsTransientStore(err) {
		t.Fatalf("want transient error got=%v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("sleeps: want=2 got=%d", len(*delays))
	}
}

func TestRetryDoesNotRetryTerminalErrors(t *testing.T) {
	cases := []error{
		apperr.ErrNotFound,
		apperr.ErrInvalidArgument,
		errors.New("plain failure"),
	}
	for _, terminal := range cases {
		s, _ := newTestRetryStore(t, 3, 100*time.Millisecond)
		calls := 0
		err := s.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return terminal
		})
		if !errors.Is(err, terminal) {
			t.Fatalf("want %v got=%v", terminal, err)
		}
		if calls != 1 {
			t.Fatalf("terminal error retried: calls=%d", calls)
		}
	}
}

func TestDoValueReturnsResult(t *testing.T) {
	s, _ := newTestRetryStore(t, 3, 100*time.Millisecond)

	calls := 0
	v, err := DoValue(context.Background(), s, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("%w: flaky", apperr.ErrTransientStore)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("DoValue: %v", err)
	}
	if v != "ok" {
		t.Fatalf("value: want=%q got=%q", "ok", v)
	}
}
