package activation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"syscall"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

var signals = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"TERM": syscall.SIGTERM,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
}

// ParseSignal resolves a signal name such as "HUP" or "SIGTERM", the empty name is SIGHUP.
func ParseSignal(name string) (os.Signal, error) {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SIG")
	if name == "" {
		return syscall.SIGHUP, nil
	}
	sig, ok := signals[name]
	if !ok {
		names := lo.Keys(signals)
		slices.Sort(names)
		return nil, fmt.Errorf("unsupported signal %q, must be one of %v", name, names)
	}
	return sig, nil
}

// Restarter restarts the application so it loads the active bundle.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RestarterFunc adapts a function to the Restarter interface.
type RestarterFunc func(ctx context.Context) error

func (f RestarterFunc) Restart(ctx context.Context) error {
	return f(ctx)
}

type commandRestarter struct {
	cmd []string
}

// NewCommandRestarter returns a Restarter that runs cmd, e.g. "systemctl restart app".
// An empty command is a no-op.
func NewCommandRestarter(cmd []string) Restarter {
	return &commandRestarter{cmd: cmd}
}

func (c *commandRestarter) Restart(ctx context.Context) error {
	if len(c.cmd) == 0 {
		log.Debug("no restart command configured, skipping restart")
		return nil
	}
	out, err := exec.CommandContext(ctx, c.cmd[0], c.cmd[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("restart command %q failed: %w, output: %s", c.cmd, err, out)
	}
	return nil
}

type signalRestarter struct {
	pid int
	sig os.Signal
}

// NewSignalRestarter returns a Restarter that sends sig to the process pid,
// leaving the actual restart to a supervisor. A pid of 0 signals the current process.
func NewSignalRestarter(pid int, sig os.Signal) Restarter {
	if sig == nil {
		sig = syscall.SIGHUP
	}
	return &signalRestarter{pid: pid, sig: sig}
}

func (s *signalRestarter) Restart(_ context.Context) error {
	pid := s.pid
	if pid == 0 {
		pid = os.Getpid()
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	log.Debugf("sending %v to process %d", s.sig, pid)
	return p.Signal(s.sig)
}
