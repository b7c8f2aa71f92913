// Package core assembles the bundleota components from a configuration and runs the agent.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/configs"
	"github.com/unbasical/bundleota/internal/pkg/api"
	"github.com/unbasical/bundleota/internal/pkg/api/apicommon"
	"github.com/unbasical/bundleota/internal/pkg/metrics"
	"github.com/unbasical/bundleota/internal/pkg/utils/ociutils"
	"github.com/unbasical/bundleota/pkg/activation"
	"github.com/unbasical/bundleota/pkg/ota"
	"github.com/unbasical/bundleota/pkg/transport"
	"github.com/unbasical/bundleota/pkg/transport/gitfetch"
	"github.com/unbasical/bundleota/pkg/transport/httpfetch"
	"github.com/unbasical/bundleota/pkg/transport/ocifetch"
	"github.com/unbasical/bundleota/pkg/versionstore"
)

// Components are the collaborators of an Orchestrator built from a configuration.
type Components struct {
	Store             versionstore.Store
	Activator         *activation.FilesystemActivator
	Orchestrator      *ota.Orchestrator
	ArchiveTransports map[string]transport.ArchiveTransport
	GitTransport      *gitfetch.Transport
	closers           []func() error
}

// Build creates the components described by cfg.
func Build(ctx context.Context, cfg configs.Config, options ...ota.Option) (*Components, error) {
	c := &Components{}
	store, err := c.buildStore(ctx, cfg.State)
	if err != nil {
		return nil, err
	}
	c.Store = store

	restarter, err := buildRestarter(cfg.Activation.Restart)
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}
	c.Activator, err = activation.NewFilesystemActivator(cfg.Activation.Root, restarter)
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}

	oci, err := buildOCIFetcher(cfg.Transport)
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}
	c.ArchiveTransports = map[string]transport.ArchiveTransport{
		apicommon.TransportHTTP: httpfetch.New(
			filepath.Join(cfg.Transport.WorkDir, apicommon.TransportHTTP),
			httpfetch.WithDefaultHeaders(cfg.Transport.Headers),
		),
		apicommon.TransportOCI: oci,
	}

	var gitOptions []func(*gitfetch.Transport)
	if cfg.Transport.Git.Username != "" {
		gitOptions = append(gitOptions, gitfetch.WithBasicAuth(cfg.Transport.Git.Username, cfg.Transport.Git.Password))
	}
	c.GitTransport = gitfetch.New(cfg.Transport.Git.Root, gitOptions...)

	options = append([]ota.Option{
		ota.WithRestartDelay(cfg.Activation.RestartDelay),
		ota.WithMetrics(metrics.UpdateRecorder{}),
	}, options...)
	c.Orchestrator = ota.New(c.Store, c.Activator, options...)
	return c, nil
}

func (c *Components) buildStore(ctx context.Context, cfg configs.StateConfig) (versionstore.Store, error) {
	switch cfg.Backend {
	case configs.StateBackendMemory:
		log.Warn("using in-memory state, the installed version is lost on restart")
		return versionstore.NewMemoryStore(), nil
	case configs.StateBackendSQLite:
		s, err := versionstore.NewSQLiteStore(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	case configs.StateBackendFile, "":
		return versionstore.NewFileStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

func buildRestarter(cfg configs.RestartConfig) (activation.Restarter, error) {
	if len(cfg.Command) > 0 {
		return activation.NewCommandRestarter(cfg.Command), nil
	}
	if cfg.PID == 0 && cfg.Signal == "" {
		return nil, nil
	}
	sig, err := activation.ParseSignal(cfg.Signal)
	if err != nil {
		return nil, err
	}
	return activation.NewSignalRestarter(cfg.PID, sig), nil
}

func buildOCIFetcher(cfg configs.TransportConfig) (*ocifetch.Fetcher, error) {
	options := []func(*ocifetch.Fetcher){ocifetch.WithPlainHTTP(cfg.OCI.EnableHTTP)}
	if p := cfg.OCI.DockerConfigPath; p != "" {
		if _, err := os.Stat(p); err != nil {
			log.WithError(err).Warnf("docker config %s is not readable, pulling anonymously", p)
		} else {
			credFunc, err := ociutils.DockerConfigCredentials(p)
			if err != nil {
				return nil, err
			}
			options = append(options, ocifetch.WithCredentialFunc(ociutils.ChainCredentials(credFunc)))
		}
	}
	return ocifetch.New(filepath.Join(cfg.WorkDir, apicommon.TransportOCI), options...), nil
}

// Close releases the resources of the components.
func (c *Components) Close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Agent serves the API of the components.
type Agent struct {
	engine   *gin.Engine
	srv      *http.Server
	hostname string
	port     uint16
}

// NewAgent builds the HTTP server of the agent.
func NewAgent(cfg configs.Config, c *Components, debug bool) (*Agent, error) {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := api.BuildApp(&apicommon.Config{
		Orchestrator:      c.Orchestrator,
		ArchiveTransports: c.ArchiveTransports,
		DefaultTransport:  cfg.Transport.Default,
		GitTransport:      c.GitTransport,
		MetricsEnabled:    cfg.Agent.Metrics,
	})
	if err := engine.SetTrustedProxies(cfg.Agent.TrustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}
	return &Agent{
		engine:   engine,
		hostname: cfg.Agent.Host,
		port:     cfg.Agent.Port,
	}, nil
}

// Start the agent, it returns once the server is listening in the background.
func (a *Agent) Start() {
	log.Info("Starting bundleota agent")
	a.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.hostname, a.port),
		Handler: a.engine,
	}
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()
	log.Infof("Listening on %s", a.srv.Addr)
}

// Stop the agent.
func (a *Agent) Stop(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}
