// Package ota drives over-the-air updates of an application bundle.
//
// An Orchestrator sequences version gating, transfer, activation, persistence and restart.
// Its operations never panic and never return Go errors: outcomes are returned as Result
// and reported through the callbacks of the options.
// The Orchestrator holds no locks, callers must not run two updates concurrently.
package ota

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/internal/pkg/utils/funcutils"
	"github.com/unbasical/bundleota/pkg/activation"
	"github.com/unbasical/bundleota/pkg/constants"
	"github.com/unbasical/bundleota/pkg/versionstore"
)

// Flow names used for logging and metrics.
const (
	FlowArchive  = "archive"
	FlowGit      = "git"
	FlowRemove   = "remove"
	FlowRollback = "rollback"
)

// Scheduler runs f after d without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(d time.Duration, f func())

func (s SchedulerFunc) AfterFunc(d time.Duration, f func()) {
	s(d, f)
}

var timerScheduler = SchedulerFunc(func(d time.Duration, f func()) {
	time.AfterFunc(d, f)
})

// Recorder receives the outcome of every operation.
type Recorder interface {
	ObserveUpdate(flow, outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpdate(string, string, time.Duration) {}

// Orchestrator runs update flows against a version store and an activation service.
type Orchestrator struct {
	store        versionstore.Store
	activator    activation.Service
	scheduler    Scheduler
	restartDelay time.Duration
	logger       *log.Entry
	metrics      Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// New creates an Orchestrator.
func New(store versionstore.Store, activator activation.Service, options ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		activator:    activator,
		scheduler:    timerScheduler,
		restartDelay: constants.DefaultRestartDelayMillis * time.Millisecond,
		logger:       log.NewEntry(log.StandardLogger()),
		metrics:      nopRecorder{},
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// WithScheduler replaces the timer based restart scheduling.
func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) {
		o.scheduler = s
	}
}

// WithRestartDelay sets the delay between a successful operation and the restart it requested.
func WithRestartDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.restartDelay = d
	}
}

// WithLogger sets the base logger.
func WithLogger(l *log.Entry) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics reports operation outcomes to r.
func WithMetrics(r Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

func (o *Orchestrator) invocationLogger(flow string) *log.Entry {
	return o.logger.WithFields(log.Fields{"flow": flow, "invocation": uuid.NewString()})
}

func (o *Orchestrator) observe(flow string, start time.Time, res *Result) {
	o.metrics.ObserveUpdate(flow, res.Outcome(), time.Since(start))
}

// scheduleRestart restarts the application after d. It returns before the restart happens.
func (o *Orchestrator) scheduleRestart(ctx context.Context, logger *log.Entry, d time.Duration) {
	// the restart outlives the operation and must not be cancelled with it
	ctx = context.WithoutCancel(ctx)
	logger.Infof("restarting application in %v", d)
	o.scheduler.AfterFunc(d, func() {
		if err := guard(func() error {
			o.activator.Restart(ctx)
			return nil
		}); err != nil {
			logger.WithError(err).Error("restart failed")
		}
	})
}

// guard converts a panic of f into an error.
func guard(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = funcutils.RecoverToError(r)
		}
	}()
	return f()
}

// guardValue is guard for functions that return a value.
func guardValue[T any](f func() (T, error)) (t T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = funcutils.RecoverToError(r)
		}
	}()
	return f()
}

// invoke calls a user callback, panics are logged and swallowed.
func invoke(logger *log.Entry, name string, f func()) {
	if f == nil {
		return
	}
	if err := guard(func() error {
		f()
		return nil
	}); err != nil {
		logger.WithError(err).Errorf("callback %s panicked", name)
	}
}
