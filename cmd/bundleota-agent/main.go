package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/common"
	"github.com/unbasical/bundleota/configs"
	"github.com/unbasical/bundleota/internal/pkg/core"
	"github.com/unbasical/bundleota/internal/pkg/utils/funcutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/logutils"
	"github.com/unbasical/bundleota/pkg/activation"
)

func main() {
	var (
		app = kingpin.New("bundleota-agent", "Serves over-the-air bundle updates of this device").Version(common.Version())

		configPath = app.Flag("config", "path to the configuration file").Short('c').Envar("BUNDLEOTA_CONFIG").ExistingFile()
		dataDir    = app.Flag("data-dir", "directory for state, bundles and downloads").Default("/var/lib/bundleota").Envar("BUNDLEOTA_DATA_DIR").String()
		host       = app.Flag("host", "listen address, overrides the configuration file").Envar("BUNDLEOTA_HOST").String()
		port       = app.Flag("port", "listen port, overrides the configuration file").Envar("BUNDLEOTA_PORT").Uint16()
		// Logging
		logLevel  = app.Flag("log-level", "Log-Level, must be one of [TRACE, DEBUG, INFO, WARN, ERROR]").Default("INFO").Envar("LOG_LEVEL").Enum(logutils.Levels...)
		logFormat = app.Flag("log-format", "Log-Format, must be one of [TEXT, JSON]").Default("TEXT").Envar("LOG_FORMAT").Enum(logutils.Formats...)
	)
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logutils.SetLogLevel(*logLevel)
	logutils.SetLogFormat(*logFormat)

	cfg := configs.Default(*dataDir)
	if *configPath != "" {
		var err error
		if cfg, err = configs.Load(*configPath, *dataDir); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}
	}
	if *host != "" {
		cfg.Agent.Host = *host
	}
	if *port != 0 {
		cfg.Agent.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := core.Build(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize")
	}
	defer funcutils.PanicOrLogOnErr(components.Close, false, "failed to close state")

	if err := components.Activator.Verify(ctx); err != nil && !errors.Is(err, activation.ErrNoActiveBundle) {
		log.WithError(err).Warn("active bundle failed verification")
	}

	agent, err := core.NewAgent(cfg, components, *logLevel == "DEBUG" || *logLevel == "debug")
	if err != nil {
		log.WithError(err).Fatal("failed to build agent")
	}
	agent.Start()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	funcutils.PanicOrLogOnErr(func() error { return agent.Stop(shutdownCtx) }, false, "failed to stop agent")
}
