//go:build e2e

package portal_test

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for portal end-to-end tests.
 * This includes container setup, session helpers, and assertions.
 */

const (
	testImageName = "careportal-test:latest"

	jwtSecret   = "e2e-secret-0123456789abcdef-0123456789"
	issuerToken = "e2e-issuer-0123456789abcdef-01234567"
)

// TestMain builds the Docker image once before all tests and cleans it up
// after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building CarePortal Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up CarePortal Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/portal/Dockerfile",
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

// baseEnv runs the container in production mode with relaxed rate limits,
// since tests often make many rapid requests.
func baseEnv() map[string]string {
	return map[string]string{
		"ENV":                        "prod",
		"JWT_SECRET":                 jwtSecret,
		"JWT_ISSUER":                 "careportal-e2e",
		"SESSION_ISSUER_TOKEN":       issuerToken,
		"SECURE_COOKIES":             "false",
		"LOG_LEVEL":                  "info",
		"LOG_FORMAT":                 "json",
		"RATELIMIT_LOGIN_REQUESTS":   "1000",
		"RATELIMIT_LOGIN_WINDOW_SEC": "60",
		"RATELIMIT_TOKEN_REQUESTS":   "1000",
		"RATELIMIT_API_REQUESTS":     "1000",
		"RATELIMIT_PUBLIC_REQUESTS":  "1000",
	}
}

// setupPortalContainer starts the service and returns its base URL. extra
// overrides baseEnv.
func setupPortalContainer(t *testing.T, extra map[string]string) (string, func()) {
	t.Helper()
	baseURL, cleanup, err := startPortal(t, extra, 60*time.Second)
	require.NoError(t, err)
	return baseURL, cleanup
}

// startPortal is setupPortalContainer without the assertion, for tests that
// expect the service to refuse to start.
func startPortal(t *testing.T, extra map[string]string, timeout time.Duration) (string, func(), error) {
	t.Helper()
	ctx := context.Background()

	env := baseEnv()
	maps.Copy(env, extra)

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          env,
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(timeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	cleanup := func() {
		if container == nil {
			return
		}
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	if err != nil {
		cleanup()
		return "", func() {}, err
	}

	mappedPort, err := container.MappedPort(ctx, "8080")
	if err != nil {
		cleanup()
		return "", func() {}, err
	}
	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		return "", func() {}, err
	}

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port()), cleanup, nil
}

// newClient returns an SDK client holding the login controller credential.
func newClient(baseURL string) *portalsdk.SDKClient {
	client := portalsdk.NewSDKClient(baseURL)
	client.IssuerToken = issuerToken
	return client
}

// openSession issues a session for a demo user with role.
func openSession(t *testing.T, client *portalsdk.SDKClient, role string) *portalsdk.Session {
	t.Helper()
	sess, err := client.OpenSession(t.Context(), portalsdk.IssueSessionRequest{
		UserID: "e2e-" + role,
		Email:  role + "@example.com",
		Role:   role,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.AccessToken())
	require.NotEmpty(t, sess.CSRFToken())
	return sess
}

func assertHealthy(t *testing.T, health *portalsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
	require.NotEmpty(t, health.Version)
}
