// Package retry wraps an operation with a fixed schedule of backoff delays.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDelays is the backoff schedule applied between attempts. The number
// of attempts equals the number of delays, and the delay after the final
// failure is never slept.
var DefaultDelays = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// sleep is overridable for tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy retries an operation once per configured delay.
type Policy struct {
	Delays []time.Duration
	Logger *logrus.Entry
}

// NewPolicy returns a policy with the default backoff schedule.
func NewPolicy(logger *logrus.Entry) Policy {
	return Policy{Delays: DefaultDelays, Logger: logger}
}

// Do runs op up to len(p.Delays) times, sleeping the scheduled delay after
// each failure except the last. It returns nil on the first success, the
// context error if the context is cancelled while waiting, and the final
// attempt's error once the schedule is exhausted.
func (p Policy) Do(ctx context.Context, name string, op func(context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if op == nil {
		return errors.New("operation is required")
	}

	delays := p.Delays
	if len(delays) == 0 {
		delays = DefaultDelays
	}

	var lastErr error
	for attempt, delay := range delays {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"operation": name,
				"attempt":   attempt + 1,
				"attempts":  len(delays),
				"error":     lastErr.Error(),
			}).Warn("attempt failed")
		}

		if attempt == len(delays)-1 {
			break
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, len(delays), lastErr)
}
