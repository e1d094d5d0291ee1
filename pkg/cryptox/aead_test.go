package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/careportal/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	for _, alg := range []string{cryptox.AlgAES256GCM, cryptox.AlgChaCha20Poly1305} {
		t.Run(alg, func(t *testing.T) {
			key, err := cryptox.GenerateKey()
			require.NoError(t, err)

			aead, err := cryptox.NewAEAD(alg, key)
			require.NoError(t, err)

			nonce, ct, err := cryptox.Seal(aead, []byte("555-0100"), []byte("phone"))
			require.NoError(t, err)
			require.Len(t, nonce, cryptox.NonceSize)

			pt, err := cryptox.Open(aead, nonce, ct, []byte("phone"))
			require.NoError(t, err)
			require.Equal(t, "555-0100", string(pt))
		})
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)
	aead, err := cryptox.NewAEAD(cryptox.AlgAES256GCM, key)
	require.NoError(t, err)

	n1, c1, err := cryptox.Seal(aead, []byte("same"), nil)
	require.NoError(t, err)
	n2, c2, err := cryptox.Seal(aead, []byte("same"), nil)
	require.NoError(t, err)

	require.NotEqual(t, n1, n2)
	require.NotEqual(t, c1, c2)
}

func TestOpenRejectsTampering(t *testing.T) {
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)
	aead, err := cryptox.NewAEAD(cryptox.AlgAES256GCM, key)
	require.NoError(t, err)

	nonce, ct, err := cryptox.Seal(aead, []byte("original-data"), []byte("ad"))
	require.NoError(t, err)

	t.Run("flipped ciphertext byte", func(t *testing.T) {
		tampered := append([]byte(nil), ct...)
		tampered[0] ^= 0xFF
		_, err := cryptox.Open(aead, nonce, tampered, []byte("ad"))
		require.ErrorIs(t, err, cryptox.ErrOpen)
	})

	t.Run("different associated data", func(t *testing.T) {
		_, err := cryptox.Open(aead, nonce, ct, []byte("other"))
		require.ErrorIs(t, err, cryptox.ErrOpen)
	})

	t.Run("short nonce", func(t *testing.T) {
		_, err := cryptox.Open(aead, nonce[:4], ct, []byte("ad"))
		require.ErrorIs(t, err, cryptox.ErrInvalidNonce)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := cryptox.Open(aead, nonce, []byte("short"), []byte("ad"))
		require.ErrorIs(t, err, cryptox.ErrOpen)
	})
}

func TestNewAEADValidation(t *testing.T) {
	_, err := cryptox.NewAEAD(cryptox.AlgAES256GCM, []byte("short"))
	require.ErrorIs(t, err, cryptox.ErrInvalidKeySize)

	key, _ := cryptox.GenerateKey()
	_, err = cryptox.NewAEAD("DES", key)
	require.ErrorIs(t, err, cryptox.ErrUnsupportedAlgorithm)
}

func TestDeriveKey(t *testing.T) {
	master := []byte("master-key-material-for-testing-0001")

	a, err := cryptox.DeriveKey(master, []byte("salt"), "purpose-a")
	require.NoError(t, err)
	require.Len(t, a, cryptox.KeySize)

	again, err := cryptox.DeriveKey(master, []byte("salt"), "purpose-a")
	require.NoError(t, err)
	require.Equal(t, a, again)

	b, err := cryptox.DeriveKey(master, []byte("salt"), "purpose-b")
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = cryptox.DeriveKey(nil, nil, "x")
	require.ErrorIs(t, err, cryptox.ErrInvalidKeySize)
}
