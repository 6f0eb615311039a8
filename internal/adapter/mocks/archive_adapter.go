package mocks

import (
	"github.com/stretchr/testify/mock"

	model "github.com/mouse-blink/libpack/internal/model"
)

// MockArchiveAdapter is a mock type for the ArchiveAdapter type.
type MockArchiveAdapter struct {
	mock.Mock
}

// Supports provides a mock function with given fields: archive.
func (_m *MockArchiveAdapter) Supports(archive model.Path) bool {
	ret := _m.Called(archive)

	return ret.Bool(0)
}

// Unpack provides a mock function with given fields: archive, dest.
func (_m *MockArchiveAdapter) Unpack(archive, dest model.Path) error {
	ret := _m.Called(archive, dest)

	if rf, ok := ret.Get(0).(func(model.Path, model.Path) error); ok {
		return rf(archive, dest)
	}

	return ret.Error(0)
}

// Pack provides a mock function with given fields: src, archive.
func (_m *MockArchiveAdapter) Pack(src, archive model.Path) error {
	ret := _m.Called(src, archive)

	return ret.Error(0)
}

// NewMockArchiveAdapter creates a new instance of MockArchiveAdapter. It also
// registers a testing interface on the mock and a cleanup function to assert
// the mocks expectations.
func NewMockArchiveAdapter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockArchiveAdapter {
	m := &MockArchiveAdapter{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
