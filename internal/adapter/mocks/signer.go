// Package mocks provides testify mocks for the adapter interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	model "github.com/mouse-blink/libpack/internal/model"
)

// MockSigner is a mock type for the Signer type.
type MockSigner struct {
	mock.Mock
}

// Sign provides a mock function with given fields: ctx, path.
func (_m *MockSigner) Sign(ctx context.Context, path model.Path) (bool, error) {
	ret := _m.Called(ctx, path)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, model.Path) bool); ok {
		r0 = rf(ctx, path)
	} else {
		r0 = ret.Bool(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, model.Path) error); ok {
		r1 = rf(ctx, path)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockSigner creates a new instance of MockSigner. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockSigner(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSigner {
	m := &MockSigner{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
