package controller

import (
	m "github.com/mouse-blink/libpack/internal/model"
)

// Message types.
type stageMsg struct {
	root  m.Path
	stage m.Stage
}

type scanMsg struct {
	result m.ScanResult
	err    error
}

type reportMsg struct {
	report m.Report
	err    error
}

// List item types.
type edgeItem struct {
	dependent string
	declared  string
	resolved  string
	class     m.Classification
}

func (e edgeItem) FilterValue() string {
	return e.dependent + " " + e.declared + " " + string(e.class)
}
