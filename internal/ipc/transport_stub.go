// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows
// +build !windows

package ipc

import "fmt"

// listen is a non-functional stand-in on non-Windows hosts; the
// agent's real target is always Windows (§1). Endpoint's dispatch
// logic is exercised in tests via an in-memory pipeListener instead.
func listen(tag string) (pipeListener, error) {
	return nil, fmt.Errorf("ipc: named pipes not supported on this OS")
}
