// Package controller provides output adapters for displaying relocation results.
package controller

import (
	m "github.com/mouse-blink/libpack/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeScan StartMode = iota
	ModeRelocate
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithScanMode sets the UI to dependency listing mode.
func WithScanMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeScan
	}
}

// WithRelocateMode sets the UI to relocation progress mode.
func WithRelocateMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeRelocate
	}
}

func newStartConfig(options ...StartOption) StartConfig {
	var cfg StartConfig
	for _, opt := range options {
		opt(&cfg)
	}

	return cfg
}

// UI defines the interface for displaying scan and relocation results.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(options ...StartOption) error
	Close()
	Wait() // Wait for UI to finish (user closes it)
	DisplayStage(root m.Path, stage m.Stage)
	DisplayScan(result m.ScanResult, err error) error
	DisplayReport(report m.Report, err error) error
}
