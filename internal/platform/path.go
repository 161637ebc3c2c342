//go:build !windows

// Package platform adjusts user-supplied paths for the host OS.
package platform

// LongPathname returns path unchanged.
func LongPathname(path string) string {
	return path
}
