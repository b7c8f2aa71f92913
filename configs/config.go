package configs

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/unbasical/bundleota/internal/pkg/utils/fileutils"
	"github.com/unbasical/bundleota/pkg/activation"
	"github.com/unbasical/bundleota/pkg/constants"
)

// State backends of StateConfig.Backend.
const (
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
	StateBackendMemory = "memory"
)

// Config is the configuration file of the bundleota agent and CLI.
type Config struct {
	State      StateConfig      `yaml:"state"`
	Activation ActivationConfig `yaml:"activation"`
	Transport  TransportConfig  `yaml:"transport"`
	Agent      AgentConfig      `yaml:"agent"`
}

type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type ActivationConfig struct {
	Root         string        `yaml:"root"`
	RestartDelay time.Duration `yaml:"restart-delay"`
	Restart      RestartConfig `yaml:"restart"`
}

// RestartConfig selects how the application is restarted, a command or a signal sent to a process.
type RestartConfig struct {
	Command []string `yaml:"command"`
	PID     int      `yaml:"pid"`
	Signal  string   `yaml:"signal"`
}

type TransportConfig struct {
	WorkDir string            `yaml:"work-dir"`
	Default string            `yaml:"default"`
	Headers map[string]string `yaml:"headers"`
	OCI     OCIConfig         `yaml:"oci"`
	Git     GitConfig         `yaml:"git"`
}

type OCIConfig struct {
	EnableHTTP       bool   `yaml:"enable-http"`
	DockerConfigPath string `yaml:"docker-config"`
}

type GitConfig struct {
	Root     string `yaml:"root"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type AgentConfig struct {
	Host           string   `yaml:"host"`
	Port           uint16   `yaml:"port"`
	Metrics        bool     `yaml:"metrics"`
	TrustedProxies []string `yaml:"trusted-proxies"`
}

// Default returns the configuration that is used for every field the file does not set.
func Default(dataDir string) Config {
	return Config{
		State: StateConfig{
			Backend: StateBackendFile,
			Path:    filepath.Join(dataDir, "state.json"),
		},
		Activation: ActivationConfig{
			Root:         filepath.Join(dataDir, "bundles"),
			RestartDelay: constants.DefaultRestartDelayMillis * time.Millisecond,
		},
		Transport: TransportConfig{
			WorkDir: filepath.Join(dataDir, "downloads"),
			Default: "http",
			Git: GitConfig{
				Root: filepath.Join(dataDir, "git"),
			},
		},
		Agent: AgentConfig{
			Host:    "127.0.0.1",
			Port:    8080,
			Metrics: true,
		},
	}
}

// Load decodes the YAML file at path on top of Default(dataDir). Unknown fields are an error.
func Load(path, dataDir string) (Config, error) {
	cfg := Default(dataDir)
	if _, err := fileutils.SafeReadYAML(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	switch c.State.Backend {
	case StateBackendFile, StateBackendSQLite:
		if c.State.Path == "" {
			errs = append(errs, fmt.Errorf("state.path is required for the %s backend", c.State.Backend))
		}
	case StateBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown state.backend %q", c.State.Backend))
	}
	if c.Activation.Root == "" {
		errs = append(errs, errors.New("activation.root is required"))
	}
	if c.Activation.RestartDelay < 0 {
		errs = append(errs, errors.New("activation.restart-delay must not be negative"))
	}
	if len(c.Activation.Restart.Command) > 0 && c.Activation.Restart.PID != 0 {
		errs = append(errs, errors.New("activation.restart.command and activation.restart.pid are mutually exclusive"))
	}
	if _, err := activation.ParseSignal(c.Activation.Restart.Signal); err != nil {
		errs = append(errs, fmt.Errorf("activation.restart.signal: %w", err))
	}
	if c.Transport.WorkDir == "" {
		errs = append(errs, errors.New("transport.work-dir is required"))
	}
	switch c.Transport.Default {
	case "http", "oci":
	default:
		errs = append(errs, fmt.Errorf("unknown transport.default %q", c.Transport.Default))
	}
	return errors.Join(errs...)
}
