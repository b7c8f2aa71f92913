package apicommon

import (
	"github.com/unbasical/bundleota/pkg/ota"
	"github.com/unbasical/bundleota/pkg/transport"
)

// Config holds the collaborators of the agent API.
type Config struct {
	Orchestrator *ota.Orchestrator
	// ArchiveTransports maps the transport names of requests to their implementation.
	ArchiveTransports map[string]transport.ArchiveTransport
	// DefaultTransport is used for requests that do not name a transport.
	DefaultTransport string
	GitTransport     transport.GitTransport
	// MetricsEnabled exposes the prometheus registry at /metrics.
	MetricsEnabled bool
}
