// Package mocks provides testify mocks for the controller interfaces.
package mocks

import (
	"github.com/stretchr/testify/mock"

	controller "github.com/mouse-blink/libpack/internal/controller"
	model "github.com/mouse-blink/libpack/internal/model"
)

// MockUI is a mock type for the UI type.
type MockUI struct {
	mock.Mock
}

// MockUI_Expecter wraps the mock with typed expectation helpers.
type MockUI_Expecter struct {
	mock *mock.Mock
}

// EXPECT returns the typed expectation helpers.
func (_m *MockUI) EXPECT() *MockUI_Expecter {
	return &MockUI_Expecter{mock: &_m.Mock}
}

// Start provides a mock function with given fields: options.
func (_m *MockUI) Start(options ...controller.StartOption) error {
	_va := make([]interface{}, len(options))
	for _i := range options {
		_va[_i] = options[_i]
	}

	ret := _m.Called(_va...)

	if rf, ok := ret.Get(0).(func(...controller.StartOption) error); ok {
		return rf(options...)
	}

	return ret.Error(0)
}

// Close provides a mock function with no fields.
func (_m *MockUI) Close() {
	_m.Called()
}

// Wait provides a mock function with no fields.
func (_m *MockUI) Wait() {
	_m.Called()
}

// DisplayStage provides a mock function with given fields: root, stage.
func (_m *MockUI) DisplayStage(root model.Path, stage model.Stage) {
	_m.Called(root, stage)
}

// DisplayScan provides a mock function with given fields: result, err.
func (_m *MockUI) DisplayScan(result model.ScanResult, err error) error {
	ret := _m.Called(result, err)

	if rf, ok := ret.Get(0).(func(model.ScanResult, error) error); ok {
		return rf(result, err)
	}

	return ret.Error(0)
}

// DisplayReport provides a mock function with given fields: report, err.
func (_m *MockUI) DisplayReport(report model.Report, err error) error {
	ret := _m.Called(report, err)

	if rf, ok := ret.Get(0).(func(model.Report, error) error); ok {
		return rf(report, err)
	}

	return ret.Error(0)
}

// Start is a helper method to define mock.On call. Options are matched by
// count only since functional options cannot be compared.
func (_e *MockUI_Expecter) Start(count int) *mock.Call {
	args := make([]interface{}, count)
	for i := range args {
		args[i] = mock.Anything
	}

	return _e.mock.On("Start", args...)
}

// Close is a helper method to define mock.On call.
func (_e *MockUI_Expecter) Close() *mock.Call {
	return _e.mock.On("Close")
}

// Wait is a helper method to define mock.On call.
func (_e *MockUI_Expecter) Wait() *mock.Call {
	return _e.mock.On("Wait")
}

// DisplayStage is a helper method to define mock.On call.
func (_e *MockUI_Expecter) DisplayStage(root interface{}, stage interface{}) *mock.Call {
	return _e.mock.On("DisplayStage", root, stage)
}

// DisplayScan is a helper method to define mock.On call.
func (_e *MockUI_Expecter) DisplayScan(result interface{}, err interface{}) *mock.Call {
	return _e.mock.On("DisplayScan", result, err)
}

// DisplayReport is a helper method to define mock.On call.
func (_e *MockUI_Expecter) DisplayReport(report interface{}, err interface{}) *mock.Call {
	return _e.mock.On("DisplayReport", report, err)
}

// NewMockUI creates a new instance of MockUI. It also registers a testing
// interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockUI(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUI {
	m := &MockUI{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
