package ota

import (
	"context"
	"time"

	"github.com/unbasical/bundleota/pkg/ota/metadata"
)

// VersionAsNumber returns the installed version.
// ok is false if the stored version is not a number.
func (o *Orchestrator) VersionAsNumber(ctx context.Context) (Version, bool, error) {
	s, err := guardValue(func() (string, error) { return o.store.CurrentVersion(ctx) })
	if err != nil {
		return NoVersion, false, err
	}
	v, ok := ParseVersion(s)
	return v, ok, nil
}

// CurrentMetadata returns the metadata stored with the installed bundle.
// ok is false if no metadata or a null was stored. Stored text that cannot be parsed is an
// error of kind ErrMetadataSerialization, it is never replaced by a default value.
func (o *Orchestrator) CurrentMetadata(ctx context.Context) (any, bool, error) {
	var ok bool
	text, err := guardValue(func() (text string, err error) {
		text, ok, err = o.store.Metadata(ctx)
		return text, err
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	v, err := metadata.Deserialize(text)
	if err != nil {
		return nil, false, NewUpdateError(ErrMetadataSerialization, err)
	}
	return v, v != nil, nil
}

// ResetApp restarts the application. It returns immediately.
func (o *Orchestrator) ResetApp(ctx context.Context) {
	o.scheduleRestart(ctx, o.invocationLogger("restart"), 0)
}

// RemoveBundle deletes the active bundle. Only if the deletion succeeded the installed version is
// reset to NoVersion and, if restartAfter is set, a restart is scheduled.
func (o *Orchestrator) RemoveBundle(ctx context.Context, restartAfter bool) (res Result) {
	return o.replaceActive(ctx, FlowRemove, ErrDeleteFailed, o.activator.DeleteBundle, restartAfter)
}

// Rollback activates the previously active bundle. The version of that bundle is unknown,
// the installed version is reset to NoVersion on success.
func (o *Orchestrator) Rollback(ctx context.Context, restartAfter bool) (res Result) {
	return o.replaceActive(ctx, FlowRollback, ErrRollbackFailed, o.activator.Rollback, restartAfter)
}

func (o *Orchestrator) replaceActive(ctx context.Context, flow string, kind error, op func(context.Context) error, restartAfter bool) (res Result) {
	start := time.Now()
	logger := o.invocationLogger(flow)
	defer o.observe(flow, start, &res)

	if err := guard(func() error { return op(ctx) }); err != nil {
		logger.WithError(err).WithField("kind", KindLabel(kind)).Error("failed to change the active bundle")
		return Result{Kind: kind, Detail: err.Error(), cause: err}
	}
	if err := guard(func() error { return o.store.SetCurrentVersion(ctx, NoVersion.String()) }); err != nil {
		logger.WithError(err).Warn("failed to reset the installed version")
		res.warn(ErrVersionPersistence, err)
	}
	logger.Info("active bundle changed")
	if restartAfter {
		o.scheduleRestart(ctx, logger, o.restartDelay)
	}
	return res
}
