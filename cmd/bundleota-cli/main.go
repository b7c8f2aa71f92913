package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/common"
	"github.com/unbasical/bundleota/configs"
	"github.com/unbasical/bundleota/internal/pkg/core"
	"github.com/unbasical/bundleota/internal/pkg/utils/logutils"
	"github.com/unbasical/bundleota/pkg/ota"
)

type cliArgs struct {
	ConfigPath string
	DataDir    string
	LogLevel   string
	LogFormat  string
	Archive    struct {
		Source     string
		Transport  string
		Version    int64
		VersionSet bool
		Headers    map[string]string
		Metadata   string
		Format     string
		Restart    bool
	}
	Git struct {
		URL        string
		BundlePath string
		Branch     string
		Folder     string
		Restart    bool
	}
	Restart bool
	Folder  string
}

func main() {
	args := &cliArgs{}
	app := kingpin.New("bundleota-cli", "A command-line tool to update the application bundle of this device").Version(common.Version())
	app.HelpFlag.Short('h')
	app.Flag("config", "path to the configuration file").Short('c').Envar("BUNDLEOTA_CONFIG").ExistingFileVar(&args.ConfigPath)
	app.Flag("data-dir", "directory for state, bundles and downloads").Default("/var/lib/bundleota").Envar("BUNDLEOTA_DATA_DIR").StringVar(&args.DataDir)
	// Logging
	app.Flag("log-level", "Log-Level, must be one of [TRACE, DEBUG, INFO, WARN, ERROR]").Default("INFO").Envar("LOG_LEVEL").EnumVar(&args.LogLevel, logutils.Levels...)
	app.Flag("log-format", "Log-Format, must be one of [TEXT, JSON]").Default("TEXT").Envar("LOG_FORMAT").EnumVar(&args.LogFormat, logutils.Formats...)

	archive := app.Command("archive", "Download and activate a bundle archive")
	archive.Arg("source", "URL of the archive, an http(s) URL or an OCI image").Required().StringVar(&args.Archive.Source)
	archive.Flag("transport", "transport used to download the archive, defaults to the configured one").EnumVar(&args.Archive.Transport, "http", "oci")
	archive.Flag("bundle-version", "version of the bundle, the update is rejected unless it is newer than the installed one").IsSetByUser(&args.Archive.VersionSet).Int64Var(&args.Archive.Version)
	archive.Flag("header", "request header, may be repeated").Short('H').StringMapVar(&args.Archive.Headers)
	archive.Flag("metadata", "JSON metadata stored with the bundle").StringVar(&args.Archive.Metadata)
	archive.Flag("format", "format of the archive, e.g. zip or tar.gz, inferred from the file name if empty").StringVar(&args.Archive.Format)
	archive.Flag("restart", "restart the application after the update").BoolVar(&args.Archive.Restart)

	git := app.Command("git", "Clone or pull a git repository that contains the bundle")
	git.Arg("url", "URL of the repository").Required().StringVar(&args.Git.URL)
	git.Arg("bundle-path", "path of the bundle inside the repository").Required().StringVar(&args.Git.BundlePath)
	git.Flag("branch", "branch to check out").StringVar(&args.Git.Branch)
	git.Flag("folder", "checkout folder").StringVar(&args.Git.Folder)
	git.Flag("restart", "restart the application after the update").BoolVar(&args.Git.Restart)

	removeGit := app.Command("remove-git", "Delete a git checkout and reset the installed version")
	removeGit.Flag("folder", "checkout folder").StringVar(&args.Folder)

	remove := app.Command("remove", "Delete the active bundle")
	remove.Flag("restart", "restart the application afterwards").BoolVar(&args.Restart)
	rollback := app.Command("rollback", "Activate the previously active bundle")
	rollback.Flag("restart", "restart the application afterwards").BoolVar(&args.Restart)
	restart := app.Command("restart", "Restart the application")
	version := app.Command("version", "Print the installed bundle version")
	metadataCmd := app.Command("metadata", "Print the metadata of the installed bundle")
	verify := app.Command("verify", "Check that the active bundle was not modified")

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	logutils.SetLogLevel(args.LogLevel)
	logutils.SetLogFormat(args.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := args.loadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	// a CLI process must not exit before a requested restart ran
	components, err := core.Build(ctx, cfg, ota.WithScheduler(ota.SchedulerFunc(func(d time.Duration, f func()) {
		time.Sleep(d)
		f()
	})))
	if err != nil {
		log.WithError(err).Fatal("failed to initialize")
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.WithError(err).Warn("failed to close state")
		}
	}()

	var declared *ota.Version
	if args.Archive.VersionSet {
		declared = ota.Version(args.Archive.Version).Ptr()
	}

	switch cmd {
	case archive.FullCommand():
		err = args.archiveUpdate(ctx, components, cfg, declared)
	case git.FullCommand():
		err = args.gitUpdate(ctx, components)
	case removeGit.FullCommand():
		err = components.Orchestrator.RemoveGitUpdate(ctx, components.GitTransport, args.Folder)
	case remove.FullCommand():
		err = report(components.Orchestrator.RemoveBundle(ctx, args.Restart))
	case rollback.FullCommand():
		err = report(components.Orchestrator.Rollback(ctx, args.Restart))
	case restart.FullCommand():
		components.Orchestrator.ResetApp(ctx)
	case version.FullCommand():
		err = printVersion(ctx, components.Orchestrator)
	case metadataCmd.FullCommand():
		err = printMetadata(ctx, components.Orchestrator)
	case verify.FullCommand():
		err = components.Activator.Verify(ctx)
	}
	if err != nil {
		log.WithError(err).Error("command failed")
		// deferred functions do not run after os.Exit
		_ = components.Close()
		stop()
		os.Exit(1)
	}
}

func (args *cliArgs) loadConfig() (configs.Config, error) {
	if args.ConfigPath == "" {
		cfg := configs.Default(args.DataDir)
		return cfg, cfg.Validate()
	}
	return configs.Load(args.ConfigPath, args.DataDir)
}
