//go:build windows

package platform

import (
	"path/filepath"
	"strings"
)

// LongPathname prefixes absolute drive paths with \\?\ so deep benchmark
// directories are not limited by MAX_PATH.
func LongPathname(path string) string {
	if len(path) < 2 || path[1] != ':' {
		return path
	}
	if !filepath.IsAbs(path) || strings.HasPrefix(path, `\\?\`) {
		return path
	}
	return `\\?\` + filepath.Clean(path)
}
