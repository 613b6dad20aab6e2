// Package testutils provides shared helpers for ev tests.
package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// FileHelpers provides utilities for working with test files
type FileHelpers struct{}

// NewFileHelpers creates file helpers
func NewFileHelpers() *FileHelpers {
	return &FileHelpers{}
}

// CreateTempFile creates a file with content inside a fresh temporary directory
func (f *FileHelpers) CreateTempFile(t *testing.T, filename, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// ReadLines returns the lines of a file without the trailing newline
func (f *FileHelpers) ReadLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
