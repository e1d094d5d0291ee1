//go:build e2e

package portal_test

import (
	"testing"

	"github.com/aussiebroadwan/careportal/pkg/portalsdk"
	"github.com/stretchr/testify/require"
)

// TestKeyRotation rotates the encryption key as admin and checks old
// ciphertexts stay readable.
func TestKeyRotation(t *testing.T) {
	baseURL, cleanup := setupPortalContainer(t, nil)
	defer cleanup()

	client := newClient(baseURL)
	ctx := t.Context()

	provider := openSession(t, client, "provider")
	field, err := provider.Protect(ctx, map[string]string{"ssn": "123-45-6789"})
	require.NoError(t, err)

	_, err = provider.RotateKey(ctx, "")
	require.True(t, portalsdk.IsForbidden(err), "provider must not rotate keys, got %v", err)

	admin := openSession(t, client, "admin")
	keys, err := admin.RotateKey(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, keys.Current.Version)
	require.Len(t, keys.Rotations, 2)
	for _, k := range keys.Keys {
		require.NotEmpty(t, k.KeyID)
	}

	revealed, err := provider.Reveal(ctx, field, false)
	require.NoError(t, err)
	require.Equal(t, "123-45-6789", revealed.Values["ssn"])

	fresh, err := provider.Protect(ctx, map[string]string{"ssn": "987-65-4321"})
	require.NoError(t, err)
	require.Equal(t, 2, fresh.Metadata.KeyVersion)
}
