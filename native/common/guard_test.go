package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	pauses := pauseMap{"settlement": true}

	if err := Guard(pauses, "settlement"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	if err := Guard(pauses, "risk"); err != nil {
		t.Fatalf("unpaused module should pass: %v", err)
	}
	if err := Guard(nil, "settlement"); err != nil {
		t.Fatalf("nil view should pass: %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module should pass: %v", err)
	}
}

func TestLatchRejectsReentry(t *testing.T) {
	var latch Latch

	release, err := latch.Acquire("liquidate")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := latch.Acquire("liquidate"); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected reentrancy error, got %v", err)
	}
	release()
	release, err = latch.Acquire("repay")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release()
}

func TestLatchNilReceiver(t *testing.T) {
	var latch *Latch
	release, err := latch.Acquire("noop")
	if err != nil {
		t.Fatalf("nil latch should be inert: %v", err)
	}
	release()
}
