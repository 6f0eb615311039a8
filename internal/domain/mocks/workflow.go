// Package mocks provides testify mocks for the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	domain "github.com/mouse-blink/libpack/internal/domain"
	model "github.com/mouse-blink/libpack/internal/model"
)

// MockWorkflow is a mock type for the Workflow type.
type MockWorkflow struct {
	mock.Mock
}

// MockWorkflow_Expecter wraps the mock with typed expectation helpers.
type MockWorkflow_Expecter struct {
	mock *mock.Mock
}

// EXPECT returns the typed expectation helpers.
func (_m *MockWorkflow) EXPECT() *MockWorkflow_Expecter {
	return &MockWorkflow_Expecter{mock: &_m.Mock}
}

func scanResult(ret mock.Arguments, args ...interface{}) (model.ScanResult, error) {
	var r0 model.ScanResult
	if rf, ok := ret.Get(0).(func(context.Context, model.Path, domain.Options) model.ScanResult); ok {
		r0 = rf(args[0].(context.Context), args[1].(model.Path), args[2].(domain.Options))
	} else if v := ret.Get(0); v != nil {
		r0 = v.(model.ScanResult)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, model.Path, domain.Options) error); ok {
		r1 = rf(args[0].(context.Context), args[1].(model.Path), args[2].(domain.Options))
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func report(ret mock.Arguments, args ...interface{}) (model.Report, error) {
	var r0 model.Report
	if rf, ok := ret.Get(0).(func(context.Context, model.Path, domain.Options) model.Report); ok {
		r0 = rf(args[0].(context.Context), args[1].(model.Path), args[2].(domain.Options))
	} else if v := ret.Get(0); v != nil {
		r0 = v.(model.Report)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, model.Path, domain.Options) error); ok {
		r1 = rf(args[0].(context.Context), args[1].(model.Path), args[2].(domain.Options))
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ScanTree provides a mock function with given fields: ctx, root, opts.
func (_m *MockWorkflow) ScanTree(ctx context.Context, root model.Path, opts domain.Options) (model.ScanResult, error) {
	return scanResult(_m.Called(ctx, root, opts), ctx, root, opts)
}

// ScanPackage provides a mock function with given fields: ctx, archive, opts.
func (_m *MockWorkflow) ScanPackage(ctx context.Context, archive model.Path, opts domain.Options) (model.ScanResult, error) {
	return scanResult(_m.Called(ctx, archive, opts), ctx, archive, opts)
}

// RelocateTree provides a mock function with given fields: ctx, root, opts.
func (_m *MockWorkflow) RelocateTree(ctx context.Context, root model.Path, opts domain.Options) (model.Report, error) {
	return report(_m.Called(ctx, root, opts), ctx, root, opts)
}

// Relocate provides a mock function with given fields: ctx, archive, opts.
func (_m *MockWorkflow) Relocate(ctx context.Context, archive model.Path, opts domain.Options) (model.Report, error) {
	return report(_m.Called(ctx, archive, opts), ctx, archive, opts)
}

// MockWorkflow_Call wraps a mock call with typed Return and Run helpers.
type MockWorkflow_Call[R any] struct {
	*mock.Call
}

// Return sets the values returned by the call.
func (_c *MockWorkflow_Call[R]) Return(result R, err error) *MockWorkflow_Call[R] {
	_c.Call.Return(result, err)
	return _c
}

// Run sets a handler invoked with the call's arguments.
func (_c *MockWorkflow_Call[R]) Run(run func(ctx context.Context, path model.Path, opts domain.Options)) *MockWorkflow_Call[R] {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(model.Path), args[2].(domain.Options))
	})

	return _c
}

// ScanTree is a helper method to define mock.On call.
func (_e *MockWorkflow_Expecter) ScanTree(ctx interface{}, root interface{}, opts interface{}) *MockWorkflow_Call[model.ScanResult] {
	return &MockWorkflow_Call[model.ScanResult]{Call: _e.mock.On("ScanTree", ctx, root, opts)}
}

// ScanPackage is a helper method to define mock.On call.
func (_e *MockWorkflow_Expecter) ScanPackage(ctx interface{}, archive interface{}, opts interface{}) *MockWorkflow_Call[model.ScanResult] {
	return &MockWorkflow_Call[model.ScanResult]{Call: _e.mock.On("ScanPackage", ctx, archive, opts)}
}

// RelocateTree is a helper method to define mock.On call.
func (_e *MockWorkflow_Expecter) RelocateTree(ctx interface{}, root interface{}, opts interface{}) *MockWorkflow_Call[model.Report] {
	return &MockWorkflow_Call[model.Report]{Call: _e.mock.On("RelocateTree", ctx, root, opts)}
}

// Relocate is a helper method to define mock.On call.
func (_e *MockWorkflow_Expecter) Relocate(ctx interface{}, archive interface{}, opts interface{}) *MockWorkflow_Call[model.Report] {
	return &MockWorkflow_Call[model.Report]{Call: _e.mock.On("Relocate", ctx, archive, opts)}
}

// NewMockWorkflow creates a new instance of MockWorkflow. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockWorkflow(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWorkflow {
	m := &MockWorkflow{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
