package reconcile

import (
	"context"

	"codeberg.org/aliassync/aliassync/pkg/identity"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListIdentities(ctx context.Context, login string) ([]identity.StoredIdentity, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.StoredIdentity), args.Error(1)
}

func (m *MockStore) DeleteIdentity(ctx context.Context, login, id string) error {
	args := m.Called(ctx, login, id)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func stored(id, email string) identity.StoredIdentity {
	return identity.StoredIdentity{ID: id, Identity: identity.Identity{Email: email}}
}
