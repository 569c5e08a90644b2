package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests and local development.
// Emails are exact-match keys.
type MemoryStore struct {
	mu          sync.RWMutex
	byEmail     map[string]*User
	byID        map[uuid.UUID]*User
	memberships map[uuid.UUID][]OrganizationMembership
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail:     make(map[string]*User),
		byID:        make(map[uuid.UUID]*User),
		memberships: make(map[uuid.UUID][]OrganizationMembership),
	}
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[user.Email]; exists {
		return ErrEmailAlreadyExists
	}
	stored := copyUser(user)
	m.byEmail[stored.Email] = stored
	m.byID[stored.ID] = stored
	return nil
}

func (m *MemoryStore) SetTwoFactorSecret(_ context.Context, userID uuid.UUID, secret string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	// First writer wins; later callers observe and reuse its secret.
	if user.TwoFactorSecret != "" {
		return user.TwoFactorSecret, nil
	}
	user.TwoFactorSecret = secret
	return secret, nil
}

func (m *MemoryStore) EnableTwoFactor(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.TwoFactorEnabled = true
	return nil
}

func (m *MemoryStore) UpdateRole(_ context.Context, userID uuid.UUID, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Role = role
	return nil
}

func (m *MemoryStore) OrganizationsForUser(_ context.Context, userID uuid.UUID) ([]OrganizationMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.memberships[userID]
	out := make([]OrganizationMembership, len(rows))
	copy(out, rows)
	return out, nil
}

// AddMembership seeds an organization membership row.
func (m *MemoryStore) AddMembership(userID, organizationID uuid.UUID, role OrgRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[userID] = append(m.memberships[userID], OrganizationMembership{
		OrganizationID: organizationID,
		Role:           role,
	})
}

func copyUser(u *User) *User {
	cp := *u
	if u.PasswordHash != nil {
		cp.PasswordHash = append([]byte(nil), u.PasswordHash...)
	}
	return &cp
}
