package ota

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/pkg/constants"
	"github.com/unbasical/bundleota/pkg/ota/metadata"
	"github.com/unbasical/bundleota/pkg/transport"
)

// ApplyArchiveUpdate downloads the bundle at sourceURI through t and activates it.
//
// If declared is not nil the update is rejected unless it is newer than the installed version,
// and it becomes the installed version once the bundle is active.
// Nothing is transferred before the version gate passed, nothing is activated before the transfer
// produced an artifact and nothing is persisted before the activation succeeded.
// Every failure invokes opts.OnFailure exactly once, success invokes opts.OnSuccess exactly once.
func (o *Orchestrator) ApplyArchiveUpdate(ctx context.Context, t transport.ArchiveTransport, sourceURI string, declared *Version, opts UpdateOptions) (res Result) {
	start := time.Now()
	logger := o.invocationLogger(FlowArchive).WithField("source", sourceURI)
	defer o.observe(FlowArchive, start, &res)

	if strings.TrimSpace(sourceURI) == "" {
		return o.installFail(logger, opts, ErrInvalidInput, constants.InvalidURLMessage, nil)
	}
	if opts.Metadata != nil {
		if err := metadata.Validate(opts.Metadata); err != nil {
			return o.installFail(logger, opts, ErrMetadataSerialization, err.Error(), err)
		}
	}
	if declared != nil {
		logger = logger.WithField("version", *declared)
		if res, rejected := o.checkVersion(ctx, logger, opts, *declared); rejected {
			return res
		}
	}

	logger.Info("fetching bundle")
	artifact, err := guardValue(func() (string, error) {
		return t.Fetch(ctx, sourceURI, opts.Headers, opts.OnProgress)
	})
	if err != nil {
		return o.installFail(logger, opts, ErrTransportError, err.Error(), err)
	}
	if artifact == "" {
		return o.installFail(logger, opts, ErrTransferFailed, fmt.Sprintf("download of %q produced no bundle", sourceURI), nil)
	}

	logger.WithField("artifact", artifact).Info("activating bundle")
	err = guard(func() error {
		return o.activator.InstallBundle(ctx, artifact, opts.FormatHint)
	})
	if err != nil {
		return o.installFail(logger, opts, ErrActivationFailed, err.Error(), err)
	}

	// the bundle is committed, failures below are warnings
	if declared != nil {
		if err := guard(func() error { return o.store.SetCurrentVersion(ctx, declared.String()) }); err != nil {
			logger.WithError(err).Warn("bundle is active but its version could not be stored")
			res.warn(ErrVersionPersistence, err)
		}
	}
	if opts.Metadata != nil {
		o.persistMetadata(ctx, logger, opts.Metadata, &res)
	}
	logger.Info("update installed")
	invoke(logger, "OnSuccess", opts.OnSuccess)
	if opts.RestartAfterInstall {
		delay := opts.RestartDelay
		if delay <= 0 {
			delay = o.restartDelay
		}
		o.scheduleRestart(ctx, logger, delay)
	}
	return res
}

// checkVersion enforces the version gate. A stored version that is not a number disables the gate.
func (o *Orchestrator) checkVersion(ctx context.Context, logger *log.Entry, opts UpdateOptions, declared Version) (Result, bool) {
	stored, err := guardValue(func() (string, error) { return o.store.CurrentVersion(ctx) })
	if err != nil {
		return o.installFail(logger, opts, ErrVersionRejected, fmt.Sprintf("failed to read the installed version: %v", err), err), true
	}
	current, ok := storedNumber(stored)
	if !ok {
		logger.WithField("installed", stored).Warn("installed version is not a number, skipping version check")
		return Result{}, false
	}
	if float64(declared) <= current {
		detail := fmt.Sprintf("version %d is not newer than the installed version %s", declared, strings.TrimSpace(stored))
		return o.installFail(logger, opts, ErrVersionRejected, detail, nil), true
	}
	return Result{}, false
}

func (o *Orchestrator) persistMetadata(ctx context.Context, logger *log.Entry, m any, res *Result) {
	text, err := metadata.Serialize(m)
	if err != nil {
		logger.WithError(err).Warn("bundle is active but its metadata could not be serialized")
		res.warn(ErrMetadataSerialization, err)
		return
	}
	if err := guard(func() error { return o.store.SetMetadata(ctx, text) }); err != nil {
		logger.WithError(err).Warn("bundle is active but its metadata could not be stored")
		res.warn(ErrVersionPersistence, err)
	}
}

// installFail is the single failure path of the archive flow.
func (o *Orchestrator) installFail(logger *log.Entry, opts UpdateOptions, kind error, detail string, cause error) Result {
	entry := logger.WithField("kind", KindLabel(kind))
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Error(detail)
	invoke(logger, "OnFailure", func() {
		if opts.OnFailure != nil {
			opts.OnFailure(detail)
		}
	})
	return Result{Kind: kind, Detail: detail, cause: cause}
}
