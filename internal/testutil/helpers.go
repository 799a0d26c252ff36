// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"testing"
)

// RequireWindows skips the test if the EXAMPROCTOR_WINDOWS_TEST environment
// variable is not set. This gates tests that need a real Windows host
// (SCM, netsh, named pipes) rather than the fake Platform Adapter.
func RequireWindows(t *testing.T) {
	t.Helper()
	if os.Getenv("EXAMPROCTOR_WINDOWS_TEST") == "" {
		t.Skip("Skipping test: requires EXAMPROCTOR_WINDOWS_TEST environment")
	}
}
