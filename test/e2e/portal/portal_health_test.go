//go:build e2e

package portal_test

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/stretchr/testify/require"
)

// TestHealthEndpoints verifies liveness and readiness on a fresh container.
func TestHealthEndpoints(t *testing.T) {
	baseURL, cleanup := setupPortalContainer(t, nil)
	defer cleanup()

	client := newClient(baseURL)

	health, err := client.GetLiveness(t.Context())
	assertHealthy(t, health, err)

	ready, err := client.GetReadiness(t.Context())
	assertHealthy(t, ready, err)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Keys)
}

// TestMetricsEndpoint verifies the Prometheus exposition is served.
func TestMetricsEndpoint(t *testing.T) {
	baseURL, cleanup := setupPortalContainer(t, nil)
	defer cleanup()

	res, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "careportal_keys_current_version 1")
}

// TestMissingSecretRefusesToStart verifies production fails closed without a
// signing secret.
func TestMissingSecretRefusesToStart(t *testing.T) {
	_, cleanup, err := startPortal(t, map[string]string{"JWT_SECRET": ""}, 15*time.Second)
	defer cleanup()
	require.Error(t, err, "container must not become healthy without JWT_SECRET in prod")
}

// TestMissingIssuerTokenRefusesToStart verifies production will not expose
// session issuance without a login controller credential.
func TestMissingIssuerTokenRefusesToStart(t *testing.T) {
	_, cleanup, err := startPortal(t, map[string]string{"SESSION_ISSUER_TOKEN": ""}, 15*time.Second)
	defer cleanup()
	require.Error(t, err, "container must not become healthy without SESSION_ISSUER_TOKEN in prod")
}

// TestAnonymousIssuanceRejected verifies a caller without the issuer
// credential cannot mint a session.
func TestAnonymousIssuanceRejected(t *testing.T) {
	baseURL, cleanup := setupPortalContainer(t, nil)
	defer cleanup()

	_, err := portalsdk.NewSDKClient(baseURL).IssueSession(t.Context(), portalsdk.IssueSessionRequest{UserID: "mallory", Role: "admin"})
	require.True(t, portalsdk.IsUnauthorized(err), "anonymous issuance must be rejected, got %v", err)
}
