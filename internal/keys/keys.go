// Package keys locates the user's SSH private keys so the CLI can supply an
// identity when none was given.
package keys

import (
	"os"
	"path/filepath"
	"strings"
)

// KeyInfo describes a private key on disk.
type KeyInfo struct {
	Path      string // Full path to private key
	Type      string // ed25519, ecdsa, rsa
	HasPublic bool   // Whether path.pub exists
}

// DefaultKeyPaths returns the standard key locations under home, in the
// order ssh itself tries them.
func DefaultKeyPaths(home string) []string {
	if home == "" {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}

// FindLocalKeys returns the default keys that exist under home.
func FindLocalKeys(home string) []KeyInfo {
	var found []KeyInfo
	for _, path := range DefaultKeyPaths(home) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		_, pubErr := os.Stat(path + ".pub")
		found = append(found, KeyInfo{
			Path:      path,
			Type:      inferKeyType(path),
			HasPublic: pubErr == nil,
		})
	}
	return found
}

// Preferred returns the best key under home, or nil. Keys with a public
// half win, then ed25519 over ecdsa over rsa.
func Preferred(home string) *KeyInfo {
	found := FindLocalKeys(home)
	if len(found) == 0 {
		return nil
	}
	for _, k := range found {
		if k.HasPublic {
			return &k
		}
	}
	return &found[0]
}

// ExpandHome replaces a leading ~ with home.
func ExpandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func inferKeyType(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.Contains(base, "ed25519"):
		return "ed25519"
	case strings.Contains(base, "ecdsa"):
		return "ecdsa"
	case strings.Contains(base, "rsa"):
		return "rsa"
	default:
		return "unknown"
	}
}
