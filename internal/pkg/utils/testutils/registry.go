package testutils

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	registryImage = "registry:2.8"
	registryPort  = "5000/tcp"
)

// LaunchRegistry starts an OCI distribution registry container and returns its host:port.
// The container is terminated when the test finishes.
func LaunchRegistry(ctx context.Context, t testing.TB) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        registryImage,
			ExposedPorts: []string{registryPort},
			WaitingFor:   wait.ForHTTP("/v2/").WithPort(registryPort),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start registry container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate registry container: %v", err)
		}
	})

	port, err := container.MappedPort(ctx, registryPort)
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)
	return net.JoinHostPort(host, port.Port())
}
