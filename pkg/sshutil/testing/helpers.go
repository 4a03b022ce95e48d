package testing

import "path"

// WithFiles pre-populates the mock filesystem with files, creating parents.
// Keys are paths, values are file contents.
func WithFiles(session *MockSession, files map[string]string) {
	for p, content := range files {
		_ = session.GetFS().MkdirAll(path.Dir(p))
		_ = session.GetFS().WriteFile(p, []byte(content))
	}
}

// WithDirs pre-populates the mock filesystem with directories.
func WithDirs(session *MockSession, dirs []string) {
	for _, dir := range dirs {
		_ = session.GetFS().MkdirAll(dir)
	}
}
