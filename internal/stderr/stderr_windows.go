//go:build windows

// Package stderr provides a no-op implementation for Windows, where the
// daemon never detaches from its console.
package stderr

import "os"

// Redirect is a no-op on Windows.
func Redirect(*os.File) error {
	return nil
}

// Restore is a no-op on Windows.
func Restore() {}
