package directory

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Server() string {
	return "ldap://mock:389"
}

func (m *MockDirectory) Open(ctx context.Context) (Session, error) {
	args := m.Called(ctx)
	if sess := args.Get(0); sess != nil {
		return sess.(Session), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Search(ctx context.Context, req SearchRequest) ([]Record, error) {
	args := m.Called(ctx, req)
	if records := args.Get(0); records != nil {
		return records.([]Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}
