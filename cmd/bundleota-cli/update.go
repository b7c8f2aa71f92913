package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/configs"
	"github.com/unbasical/bundleota/internal/pkg/core"
	"github.com/unbasical/bundleota/internal/pkg/utils/observer"
	"github.com/unbasical/bundleota/pkg/ota"
	"github.com/unbasical/bundleota/pkg/ota/metadata"
)

func (args *cliArgs) archiveUpdate(ctx context.Context, c *core.Components, cfg configs.Config, declared *ota.Version) error {
	name := args.Archive.Transport
	if name == "" {
		name = cfg.Transport.Default
	}
	t, ok := c.ArchiveTransports[name]
	if !ok {
		return fmt.Errorf("unknown transport %q", name)
	}
	var m any
	if args.Archive.Metadata != "" {
		var err error
		if m, err = metadata.Deserialize(args.Archive.Metadata); err != nil {
			return err
		}
		if m == nil {
			m = metadata.Null
		}
	}
	p := &progress{}
	stopProgress := watchProgress(ctx, p)
	defer stopProgress()
	res := c.Orchestrator.ApplyArchiveUpdate(ctx, t, args.Archive.Source, declared, ota.UpdateOptions{
		Headers:             args.Archive.Headers,
		OnProgress:          p.update,
		Metadata:            m,
		FormatHint:          args.Archive.Format,
		RestartAfterInstall: args.Archive.Restart,
	})
	return report(res)
}

func (args *cliArgs) gitUpdate(ctx context.Context, c *core.Components) error {
	p := &progress{}
	stopProgress := watchProgress(ctx, p)
	defer stopProgress()
	res := c.Orchestrator.ApplyGitUpdate(ctx, c.GitTransport, ota.GitUpdateOptions{
		URL:                 args.Git.URL,
		BundlePath:          args.Git.BundlePath,
		Branch:              args.Git.Branch,
		FolderName:          args.Git.Folder,
		OnProgress:          p.update,
		RestartAfterInstall: args.Git.Restart,
	})
	return report(res)
}

// watchProgress prints p once per second until the returned function is called.
func watchProgress(ctx context.Context, p *progress) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o := &observer.IntervalObserver[*progress]{
		Interval: time.Second,
		F: func(p *progress) error {
			if s := p.String(); s != "" {
				log.Info(s)
			}
			return nil
		},
		Observable: p,
	}
	go func() {
		defer close(done)
		_ = o.Observe(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// report logs the warnings of res and returns its failure.
func report(res ota.Result) error {
	for _, w := range res.Warnings {
		log.WithError(w).Warn("operation succeeded with a warning")
	}
	if err := res.Err(); err != nil {
		return err
	}
	fields := log.Fields{"outcome": res.Outcome()}
	if res.Branch != ota.GitBranchNone {
		fields["branch"] = res.Branch.String()
	}
	log.WithFields(fields).Info("operation succeeded")
	return nil
}

func printVersion(ctx context.Context, o *ota.Orchestrator) error {
	v, ok, err := o.VersionAsNumber(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("the installed version is not a number")
	}
	fmt.Println(v)
	return nil
}

func printMetadata(ctx context.Context, o *ota.Orchestrator) error {
	m, _, err := o.CurrentMetadata(ctx)
	if err != nil {
		return err
	}
	out, err := json.Marshal(m)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", out)
	return nil
}
