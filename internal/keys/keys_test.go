package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKey(t *testing.T, home, name string, withPub bool) string {
	t.Helper()
	dir := filepath.Join(home, ".ssh")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("private"), 0o600))
	if withPub {
		require.NoError(t, os.WriteFile(path+".pub", []byte("public"), 0o644))
	}
	return path
}

func TestDefaultKeyPaths(t *testing.T) {
	assert.Nil(t, DefaultKeyPaths(""))

	paths := DefaultKeyPaths("/home/u")
	assert.Equal(t, []string{
		"/home/u/.ssh/id_ed25519",
		"/home/u/.ssh/id_ecdsa",
		"/home/u/.ssh/id_rsa",
	}, paths)
}

func TestFindLocalKeys(t *testing.T) {
	home := t.TempDir()
	assert.Empty(t, FindLocalKeys(home))

	rsa := writeKey(t, home, "id_rsa", true)
	ed := writeKey(t, home, "id_ed25519", false)

	found := FindLocalKeys(home)
	require.Len(t, found, 2)
	assert.Equal(t, KeyInfo{Path: ed, Type: "ed25519", HasPublic: false}, found[0])
	assert.Equal(t, KeyInfo{Path: rsa, Type: "rsa", HasPublic: true}, found[1])
}

func TestFindLocalKeys_SkipsDirectories(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh", "id_ed25519"), 0o700))

	assert.Empty(t, FindLocalKeys(home))
}

func TestPreferred(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		assert.Nil(t, Preferred(t.TempDir()))
	})

	t.Run("ed25519 first", func(t *testing.T) {
		home := t.TempDir()
		writeKey(t, home, "id_rsa", true)
		ed := writeKey(t, home, "id_ed25519", true)

		got := Preferred(home)
		require.NotNil(t, got)
		assert.Equal(t, ed, got.Path)
	})

	t.Run("public half wins", func(t *testing.T) {
		home := t.TempDir()
		writeKey(t, home, "id_ed25519", false)
		ecdsa := writeKey(t, home, "id_ecdsa", true)

		got := Preferred(home)
		require.NotNil(t, got)
		assert.Equal(t, ecdsa, got.Path)
	})

	t.Run("falls back to first", func(t *testing.T) {
		home := t.TempDir()
		rsa := writeKey(t, home, "id_rsa", false)

		got := Preferred(home)
		require.NotNil(t, got)
		assert.Equal(t, rsa, got.Path)
	})
}

func TestExpandHome(t *testing.T) {
	tests := []struct {
		path, home, want string
	}{
		{"~/.ssh/id_rsa", "/home/u", "/home/u/.ssh/id_rsa"},
		{"~", "/home/u", "/home/u"},
		{"/abs/key", "/home/u", "/abs/key"},
		{"~other/key", "/home/u", "~other/key"},
		{"~/key", "", "~/key"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandHome(tt.path, tt.home))
		})
	}
}
