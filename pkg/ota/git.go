package ota

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/unbasical/bundleota/internal/pkg/utils/funcutils"
	"github.com/unbasical/bundleota/pkg/transport"
)

// ApplyGitUpdate updates the bundle from a git repository.
//
// An existing checkout, one with a configuration and a resolvable branch, is pulled.
// Otherwise the repository is cloned and the bundle at opts.BundlePath is activated in place.
// Errors and panics of the transport are reported through opts.OnCloneFailed whichever branch ran,
// and opts.OnFinish is invoked exactly once on every path.
func (o *Orchestrator) ApplyGitUpdate(ctx context.Context, g transport.GitTransport, opts GitUpdateOptions) (res Result) {
	start := time.Now()
	logger := o.invocationLogger(FlowGit).WithFields(log.Fields{"url": opts.URL, "folder": opts.FolderName})
	defer o.observe(FlowGit, start, &res)
	defer invoke(logger, "OnFinish", opts.OnFinish)
	defer func() {
		if r := recover(); r != nil {
			err := funcutils.RecoverToError(r)
			res = o.cloneFailed(logger, opts, res.Branch, ErrCloneFailed, err.Error(), err)
		}
	}()

	if opts.URL == "" || opts.BundlePath == "" {
		return o.cloneFailed(logger, opts, GitBranchNone, ErrInvalidInput, "git url and bundle path are required", nil)
	}

	var (
		cfg    *transport.GitConfig
		branch string
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		cfg, err = guardValue(func() (*transport.GitConfig, error) { return g.Config(egCtx, opts.FolderName) })
		return err
	})
	eg.Go(func() (err error) {
		branch, err = guardValue(func() (string, error) { return g.BranchName(egCtx, opts.FolderName) })
		return err
	})
	if err := eg.Wait(); err != nil {
		return o.cloneFailed(logger, opts, GitBranchNone, ErrCloneFailed, err.Error(), err)
	}

	if cfg != nil && branch != "" {
		return o.pull(ctx, logger.WithField("branch", branch), g, opts, branch)
	}
	return o.clone(ctx, logger, g, opts)
}

func (o *Orchestrator) pull(ctx context.Context, logger *log.Entry, g transport.GitTransport, opts GitUpdateOptions, current string) Result {
	branch := opts.Branch
	if branch == "" {
		branch = current
	}
	logger.Info("pulling existing checkout")
	pull, err := guardValue(func() (transport.PullResult, error) {
		return g.Pull(ctx, transport.PullRequest{
			Branch:     branch,
			FolderName: opts.FolderName,
			OnProgress: opts.OnProgress,
		})
	})
	if err != nil {
		return o.cloneFailed(logger, opts, GitBranchPull, ErrCloneFailed, err.Error(), err)
	}
	if !pull.Success {
		logger.WithField("kind", KindLabel(ErrPullFailed)).Error(pull.Msg)
		invoke(logger, "OnPullFailed", func() {
			if opts.OnPullFailed != nil {
				opts.OnPullFailed(pull.Msg)
			}
		})
		return Result{Kind: ErrPullFailed, Detail: pull.Msg, Branch: GitBranchPull}
	}
	logger.Info("pulled update")
	invoke(logger, "OnPullSuccess", opts.OnPullSuccess)
	if opts.RestartAfterInstall {
		o.scheduleRestart(ctx, logger, o.restartDelay)
	}
	return Result{Branch: GitBranchPull}
}

func (o *Orchestrator) clone(ctx context.Context, logger *log.Entry, g transport.GitTransport, opts GitUpdateOptions) Result {
	logger.Info("cloning repository")
	clone, err := guardValue(func() (transport.CloneResult, error) {
		return g.Clone(ctx, transport.CloneRequest{
			URL:        opts.URL,
			Branch:     opts.Branch,
			FolderName: opts.FolderName,
			BundlePath: opts.BundlePath,
			OnProgress: opts.OnProgress,
		})
	})
	if err != nil {
		return o.cloneFailed(logger, opts, GitBranchClone, ErrCloneFailed, err.Error(), err)
	}
	if !clone.Success || clone.Bundle == "" {
		msg := clone.Msg
		if msg == "" {
			msg = "clone produced no bundle"
		}
		return o.cloneFailed(logger, opts, GitBranchClone, ErrCloneFailed, msg, nil)
	}
	err = guard(func() error {
		return o.activator.InstallExactBundle(ctx, clone.Bundle)
	})
	if err != nil {
		return o.cloneFailed(logger, opts, GitBranchClone, ErrActivationFailed, err.Error(), err)
	}
	logger.WithField("bundle", clone.Bundle).Info("cloned and activated bundle")
	invoke(logger, "OnCloneSuccess", opts.OnCloneSuccess)
	if opts.RestartAfterInstall {
		o.scheduleRestart(ctx, logger, o.restartDelay)
	}
	return Result{Branch: GitBranchClone}
}

// cloneFailed reports a failure of the git flow on the clone channel.
func (o *Orchestrator) cloneFailed(logger *log.Entry, opts GitUpdateOptions, branch GitBranch, kind error, msg string, cause error) Result {
	entry := logger.WithFields(log.Fields{"kind": KindLabel(kind), "branch": branch})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Error(msg)
	invoke(logger, "OnCloneFailed", func() {
		if opts.OnCloneFailed != nil {
			opts.OnCloneFailed(msg)
		}
	})
	return Result{Kind: kind, Detail: msg, Branch: branch, cause: cause}
}

// RemoveGitUpdate deletes the checkout in folder and resets the installed version.
func (o *Orchestrator) RemoveGitUpdate(ctx context.Context, g transport.GitTransport, folder string) error {
	logger := o.invocationLogger(FlowRemove).WithField("folder", folder)
	if err := guard(func() error { return g.RemoveGitUpdate(ctx, folder) }); err != nil {
		logger.WithError(err).Error("failed to remove git checkout")
		return NewUpdateError(ErrDeleteFailed, err)
	}
	if err := guard(func() error { return o.store.SetCurrentVersion(ctx, NoVersion.String()) }); err != nil {
		logger.WithError(err).Warn("checkout removed but the version could not be reset")
		return NewUpdateError(ErrVersionPersistence, err)
	}
	logger.Info("removed git checkout")
	return nil
}
