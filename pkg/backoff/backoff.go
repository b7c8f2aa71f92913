package backoff

import (
	"context"
	"errors"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrMaxRetries is returned by Wait once the strategy has no attempts left.
var ErrMaxRetries = errors.New("maximum retries exceeded")

// Strategy is used to avoid flooding a remote with requests by adding a delay
// between consecutive attempts of a transfer.
type Strategy interface {
	// Wait blocks until the next attempt may start.
	// It returns ErrMaxRetries when no attempts are left or the context error when ctx is done first.
	Wait(ctx context.Context) error
}

// exponentialBackoffWithJitter implements the Strategy interface
type exponentialBackoffWithJitter struct {
	baseDelay      time.Duration // Base delay between retries (e.g., 100ms)
	maxDelay       time.Duration // Upper bound of a single delay
	currentAttempt uint
	maxAttempt     uint
	randSource     *rand.Rand // Random source for jittering
}

// NewExponentialBackoffWithJitter creates a new instance of exponentialBackoffWithJitter
func NewExponentialBackoffWithJitter(baseDelay, maxDelay time.Duration, maxAttempts uint) Strategy {
	source := rand.NewSource(time.Now().UnixNano())
	return &exponentialBackoffWithJitter{
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		maxAttempt: maxAttempts,
		randSource: rand.New(source),
	}
}

func (e *exponentialBackoffWithJitter) next() time.Duration {
	delay := e.baseDelay * time.Duration(1<<e.currentAttempt) // 2^attempt * baseDelay
	if delay <= 0 || delay > e.maxDelay {
		delay = e.maxDelay
	}
	if delay > 1 {
		// jitter in both directions, between -0.5x and +0.5x
		jitter := time.Duration(e.randSource.Int63n(int64(delay)))
		delay = delay + jitter - (delay / 2)
	}
	if delay > e.maxDelay {
		delay = e.maxDelay
	}
	return delay
}

// Wait calculates the next backoff time with exponential backoff and jitter
func (e *exponentialBackoffWithJitter) Wait(ctx context.Context) error {
	if e.currentAttempt >= e.maxAttempt {
		return ErrMaxRetries
	}
	delay := e.next()
	log.Debugf("waiting for %v (attempt %d/%d)", delay, e.currentAttempt+1, e.maxAttempt)
	e.currentAttempt++
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DefaultBackoff returns a sensible default Strategy (exponential with an upper bound).
func DefaultBackoff() Strategy {
	const defaultBaseDelay = 50 * time.Millisecond
	const defaultMaxDelay = 10 * time.Second
	return NewExponentialBackoffWithJitter(defaultBaseDelay, defaultMaxDelay, 5)
}

// Retry calls f until it succeeds, f reports a permanent error or the strategy is exhausted.
// The last error of f is returned when giving up.
func Retry(ctx context.Context, s Strategy, f func() (retry bool, err error)) error {
	for {
		retry, err := f()
		if err == nil || !retry {
			return err
		}
		if waitErr := s.Wait(ctx); waitErr != nil {
			log.WithError(err).Debug("giving up after failed attempts")
			return errors.Join(err, waitErr)
		}
	}
}
