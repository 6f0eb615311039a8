package controller

import "testing"

func TestStartOptions(t *testing.T) {
	if cfg := newStartConfig(); cfg.mode != ModeScan {
		t.Fatalf("default mode = %v, want ModeScan", cfg.mode)
	}

	if cfg := newStartConfig(WithRelocateMode()); cfg.mode != ModeRelocate {
		t.Fatalf("WithRelocateMode mode = %v, want ModeRelocate", cfg.mode)
	}

	if cfg := newStartConfig(WithRelocateMode(), WithScanMode()); cfg.mode != ModeScan {
		t.Fatalf("last option should win, got %v", cfg.mode)
	}
}
