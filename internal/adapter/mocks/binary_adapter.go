package mocks

import (
	"github.com/stretchr/testify/mock"

	model "github.com/mouse-blink/libpack/internal/model"
)

// MockBinaryAdapter is a mock type for the BinaryAdapter type.
type MockBinaryAdapter struct {
	mock.Mock
}

// Inspect provides a mock function with given fields: path.
func (_m *MockBinaryAdapter) Inspect(path model.Path) (model.Binary, bool, error) {
	ret := _m.Called(path)

	var r0 model.Binary
	if rf, ok := ret.Get(0).(func(model.Path) model.Binary); ok {
		r0 = rf(path)
	} else {
		r0 = ret.Get(0).(model.Binary)
	}

	return r0, ret.Bool(1), ret.Error(2)
}

// Rewrite provides a mock function with given fields: rw.
func (_m *MockBinaryAdapter) Rewrite(rw model.Rewrite) (bool, error) {
	ret := _m.Called(rw)

	return ret.Bool(0), ret.Error(1)
}

// Forget provides a mock function with given fields: path.
func (_m *MockBinaryAdapter) Forget(path model.Path) {
	_m.Called(path)
}

// NewMockBinaryAdapter creates a new instance of MockBinaryAdapter. It also
// registers a testing interface on the mock and a cleanup function to assert
// the mocks expectations.
func NewMockBinaryAdapter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBinaryAdapter {
	m := &MockBinaryAdapter{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
