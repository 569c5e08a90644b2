package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockStore) SetTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) (string, error) {
	args := m.Called(ctx, userID, secret)
	return args.String(0), args.Error(1)
}

func (m *MockStore) EnableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockStore) UpdateRole(ctx context.Context, userID uuid.UUID, role Role) error {
	args := m.Called(ctx, userID, role)
	return args.Error(0)
}

func (m *MockStore) OrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]OrganizationMembership, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]OrganizationMembership), args.Error(1)
}
