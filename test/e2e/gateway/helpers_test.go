package gateway_test

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/hwidgate/pkg/loadersdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for loader gateway end-to-end tests.
 * This includes container setup and the registry the container starts with.
 */

const (
	testImageName = "hwidgate-gateway-test:latest"

	permanentHWID = "abcd1234-ef56-7890-abcd-ef1234567890"
	lapsedHWID    = "11111111-2222-3333-4444-555555555555"
	revokedHWID   = "99999999-8888-7777-6666-555555555555"
	absentHWID    = "00000000-0000-0000-0000-000000000000"

	fallbackScript = "-- fallback copy\nprint('hello')\n"
)

const registryJSON = `{
    "abcd1234-ef56-7890-abcd-ef1234567890": {"status": "authorized", "kind": "permanent"},
    "11111111-2222-3333-4444-555555555555": {"status": "authorized", "kind": "temporal", "expiresAt": "2020-01-01 00:00:00"},
    "99999999-8888-7777-6666-555555555555": {"status": "unauthorized", "kind": "permanent"}
}`

// TestMain builds the Docker image once before all tests and cleans it up
// after all tests complete.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Fprintln(os.Stdout, "skipping container tests in short mode")
		os.Exit(0)
	}

	fmt.Fprintf(os.Stdout, "Building gateway Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up gateway Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/gateway/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// setupGatewayContainer starts the gateway with the test registry and a
// fallback copy. The upstream points at a closed port, so every authorized
// request is served from the fallback.
func setupGatewayContainer(t *testing.T) (testcontainers.Container, string) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"GITHUB_TOKEN":      "ghp_e2e",
			"GITHUB_OWNER":      "acme",
			"GITHUB_REPO":       "scripts",
			"UPSTREAM_BASE_URL": "https://127.0.0.1:1",
			"UPSTREAM_TIMEOUT":  "2s",
			"ENV":               "test",
			"LOG_LEVEL":         "info",
			"LOG_FORMAT":        "json",
		},
		Files: []testcontainers.ContainerFile{
			{Reader: strings.NewReader(registryJSON), ContainerFilePath: "/data/hwids.json", FileMode: 0o666},
			{Reader: strings.NewReader(fallbackScript), ContainerFilePath: "/data/backup.lua", FileMode: 0o644},
		},
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	return container, fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

// readContainerFile returns the contents of path inside the container.
func readContainerFile(ctx context.Context, container testcontainers.Container, path string) (string, error) {
	rc, err := container.CopyFileFromContainer(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	return string(data), err
}

// requireLoaderError asserts err is a gateway response with the given status and body.
func requireLoaderError(t *testing.T, err error, status int, body string) {
	t.Helper()

	require.Error(t, err)
	apiErr, ok := err.(*loadersdk.Error)
	require.True(t, ok, "expected *loadersdk.Error, got %T: %v", err, err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, body, apiErr.Body)
}
