package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

// ResolvePath expands ~ and anchors a relative path at baseDir.
// An empty path stays empty.
func ResolvePath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	path = ExpandHome(path)
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
