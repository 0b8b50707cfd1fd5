package cryptox_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sahtee/admin/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	sealer, err := cryptox.NewSealer([]byte("test-key-material"))
	require.NoError(t, err)

	token := []byte("eyJhbGciOiJIUzI1NiJ9.payload.sig")
	sealed, err := sealer.Seal(token, []byte("session"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), string(token))

	opened, err := sealer.Open(sealed, []byte("session"))
	require.NoError(t, err)
	require.Equal(t, token, opened)
}

func TestSealRandomNonce(t *testing.T) {
	sealer, err := cryptox.NewSealer([]byte("test-key-material"))
	require.NoError(t, err)

	a, err := sealer.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := sealer.Seal([]byte("same"), nil)
	require.NoError(t, err)

	require.NotEqual(t, a, b, "each seal must use a fresh nonce")
}

func TestOpenRejectsTampering(t *testing.T) {
	sealer, err := cryptox.NewSealer([]byte("test-key-material"))
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("secret"), []byte("session"))
	require.NoError(t, err)

	t.Run("wrong additional data", func(t *testing.T) {
		_, err := sealer.Open(sealed, []byte("other"))
		require.ErrorIs(t, err, cryptox.ErrCiphertext)
	})

	t.Run("flipped bit", func(t *testing.T) {
		bad := append([]byte(nil), sealed...)
		bad[len(bad)-1] ^= 0x01
		_, err := sealer.Open(bad, []byte("session"))
		require.ErrorIs(t, err, cryptox.ErrCiphertext)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := sealer.Open(sealed[:10], []byte("session"))
		require.ErrorIs(t, err, cryptox.ErrCiphertext)
	})

	t.Run("different key", func(t *testing.T) {
		other, err := cryptox.NewSealer([]byte("another-key"))
		require.NoError(t, err)
		_, err = other.Open(sealed, []byte("session"))
		require.ErrorIs(t, err, cryptox.ErrCiphertext)
	})
}

func TestNewSealerRequiresKey(t *testing.T) {
	_, err := cryptox.NewSealer(nil)
	require.Error(t, err)
}

func TestLoadKeyMaterial(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token.key")
		require.NoError(t, os.WriteFile(path, []byte("file-key\n"), 0o600))

		key, ephemeral, err := cryptox.LoadKeyMaterial(path, "ignored")
		require.NoError(t, err)
		require.False(t, ephemeral)
		require.Equal(t, []byte("file-key"), key)
	})

	t.Run("from value", func(t *testing.T) {
		key, ephemeral, err := cryptox.LoadKeyMaterial("", "value-key")
		require.NoError(t, err)
		require.False(t, ephemeral)
		require.Equal(t, []byte("value-key"), key)
	})

	t.Run("ephemeral fallback", func(t *testing.T) {
		key, ephemeral, err := cryptox.LoadKeyMaterial("", "")
		require.NoError(t, err)
		require.True(t, ephemeral)
		require.Len(t, key, 32)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := cryptox.LoadKeyMaterial(filepath.Join(t.TempDir(), "nope"), "")
		require.Error(t, err)
	})
}
