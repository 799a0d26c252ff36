// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows

package ipc

import (
	"fmt"

	"github.com/Microsoft/go-winio"
)

// requestPipeName returns the agent's inbound pipe path for tag (§6).
func requestPipeName(tag string) string {
	return `\\.\pipe\` + tag
}

// listen binds the named pipe the agent reads requests from. The
// security descriptor grants connect access to any authenticated user,
// since the GUI launcher runs at normal user privilege while the agent
// runs elevated (grounded on the same SDDL every named-pipe service in
// this codebase's lineage uses).
func listen(tag string) (pipeListener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;AU)",
		MessageMode:        true,
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	}
	l, err := winio.ListenPipe(requestPipeName(tag), cfg)
	if err != nil {
		return nil, fmt.Errorf("ipc: winio.ListenPipe: %w", err)
	}
	return l, nil
}
