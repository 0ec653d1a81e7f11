// Package creds persists per-database identity/token pairs on disk so a
// client can reconnect as the same identity across runs.
package creds

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformed is returned when a credential file does not hold an
// identity line followed by a token line.
var ErrMalformed = errors.New("creds: malformed credential file")

// defaultDirName is used under $HOME, or verbatim when HOME is unset.
const defaultDirName = ".spacetimedb_client_credentials"

// Credentials is one identity/token pair.
type Credentials struct {
	Identity string
	Token    string
}

// DefaultDir returns the default credential directory.
func DefaultDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

func path(dir, database string) string {
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, database+".creds")
}

// Load reads the credentials for database from dir (the default directory
// when dir is empty). A missing file is reported via os.ErrNotExist.
func Load(dir, database string) (Credentials, error) {
	data, err := os.ReadFile(path(dir, database))
	if err != nil {
		return Credentials{}, fmt.Errorf("creds: read: %w", err)
	}
	identity, token, ok := strings.Cut(strings.TrimRight(string(data), "\n"), "\n")
	if !ok || identity == "" || token == "" {
		return Credentials{}, ErrMalformed
	}
	return Credentials{Identity: identity, Token: token}, nil
}

// Store writes the credentials for database into dir, creating the
// directory when needed. Files are owner-only: they hold a bearer token.
func Store(dir, database string, c Credentials) error {
	if c.Identity == "" || c.Token == "" {
		return ErrMalformed
	}
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creds: create dir: %w", err)
	}
	data := c.Identity + "\n" + c.Token
	if err := os.WriteFile(path(dir, database), []byte(data), 0o600); err != nil {
		return fmt.Errorf("creds: write: %w", err)
	}
	return nil
}
