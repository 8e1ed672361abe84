// SPDX-License-Identifier: Apache-2.0

// Package pidcheck implements the process-liveness capability the lock
// manager uses to distinguish a busy lock from a stale one left behind by a
// crashed writer.
package pidcheck

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// Checker reports whether a pid currently exists on the host.
type Checker interface {
	Alive(ctx context.Context, pid int32) (bool, error)
}

// OS backs Checker with gopsutil's cross-platform process enumeration
// (signal 0 on Unix, process-snapshot lookup on Windows).
type OS struct{}

func (OS) Alive(ctx context.Context, pid int32) (bool, error) {
	return process.PidExistsWithContext(ctx, pid)
}

// Fake is a test double reporting liveness from a fixed set.
type Fake struct {
	AlivePids map[int32]bool
}

func (f Fake) Alive(_ context.Context, pid int32) (bool, error) {
	return f.AlivePids[pid], nil
}
