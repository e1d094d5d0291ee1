//go:build e2e

package portal_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/stretchr/testify/require"
)

// TestRateLimitSessionEndpoint verifies that session issuance is limited to
// the login budget (5 req/min by default).
func TestRateLimitSessionEndpoint(t *testing.T) {
	baseURL, cleanup := setupPortalContainer(t, map[string]string{
		"RATELIMIT_LOGIN_REQUESTS": "5",
	})
	defer cleanup()

	client := newClient(baseURL)
	ctx := context.Background()

	for i := range 5 {
		_, err := client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-rl", Role: "patient"})
		require.NoError(t, err, "request %d should not be rate limited", i+1)
	}

	_, err := client.IssueSession(ctx, portalsdk.IssueSessionRequest{UserID: "user-rl", Role: "patient"})
	require.True(t, portalsdk.IsRateLimited(err), "6th request should be rate limited, got %v", err)

	var apiErr *portalsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Positive(t, apiErr.RetryAfter)
	t.Logf("Rate limited after 5 requests, retry after %s", apiErr.RetryAfter)
}
