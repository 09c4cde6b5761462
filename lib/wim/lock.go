// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

package wim

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ChloeTigre/wimlib/lib/format"
)

// lockForAppend takes an exclusive advisory lock on the WIM file for
// the duration of an in-place overwrite. Non-blocking: a concurrent
// appender is an immediate error, not a wait.
func (w *WIM) lockForAppend() error {
	if w.lockedForAppend {
		return nil
	}
	if w.file == nil {
		return fmt.Errorf("%w: no file to lock", format.ErrInvalidParam)
	}
	if err := unix.Flock(int(w.file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("%w: WIM is locked by another process: %v", format.ErrOpen, err)
	}
	w.lockedForAppend = true
	return nil
}

// unlockForAppend releases the append lock. Called on every exit
// path of an overwrite, success or failure.
func (w *WIM) unlockForAppend() {
	if !w.lockedForAppend || w.file == nil {
		w.lockedForAppend = false
		return
	}
	unix.Flock(int(w.file.Fd()), unix.LOCK_UN)
	w.lockedForAppend = false
}
