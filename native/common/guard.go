package common

import (
	"errors"
	"fmt"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

// PauseView exposes the per-module pause flags held in state.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or an
// empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Latch marks a non-reentrant section. Mutating settlement entry points
// acquire it on entry and release on exit; nested acquisition fails. Engines
// execute single-threaded under the node's transaction lock, so the latch
// only has to catch same-goroutine reentry through callbacks.
type Latch struct {
	engaged bool
}

// Acquire engages the latch and returns the release function. Acquiring an
// engaged latch fails with ErrReentrantCall naming the blocked operation.
func (l *Latch) Acquire(op string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.engaged {
		return nil, fmt.Errorf("%w: %s", ErrReentrantCall, op)
	}
	l.engaged = true
	return func() { l.engaged = false }, nil
}
