package observer

import (
	"context"
	"time"
)

// IntervalObserver calls F with Observable once per Interval until the context is done.
// F is called one final time after cancellation so the last observed value is not lost.
type IntervalObserver[T any] struct {
	Interval   time.Duration
	F          func(T) error
	Observable T
}

func (o *IntervalObserver[T]) Observe(ctx context.Context) error {
	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return o.F(o.Observable)
		case <-ticker.C:
			if ctx.Err() != nil {
				return o.F(o.Observable)
			}
			if err := o.F(o.Observable); err != nil {
				return err
			}
		}
	}
}
