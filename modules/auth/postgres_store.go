package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ralvo/ralvo/pkg/pg"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by PostgreSQL.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `id, email, password_hash, two_factor_secret, two_factor_enabled, role, created_at`

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg any) (*User, error) {
	var (
		user   User
		secret *string
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &secret, &user.TwoFactorEnabled, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if secret != nil {
		user.TwoFactorSecret = *secret
	}
	return &user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	var secret *string
	if user.TwoFactorSecret != "" {
		secret = &user.TwoFactorSecret
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, two_factor_secret, two_factor_enabled, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.PasswordHash, secret, user.TwoFactorEnabled, user.Role, user.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetTwoFactorSecret writes the secret only when the column is still NULL,
// then re-reads the row. Under concurrent provisioning both callers end up
// returning whichever secret the single successful writer stored.
func (s *PostgresStore) SetTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) (string, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET two_factor_secret = $2 WHERE id = $1 AND two_factor_secret IS NULL`,
		userID, secret,
	)
	if err != nil {
		return "", fmt.Errorf("provision secret: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return secret, nil
	}

	var effective *string
	err = s.pool.QueryRow(ctx, `SELECT two_factor_secret FROM users WHERE id = $1`, userID).Scan(&effective)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("read secret: %w", err)
	}
	if effective == nil {
		return "", ErrSecretNotProvisioned
	}
	return *effective, nil
}

func (s *PostgresStore) EnableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET two_factor_enabled = TRUE WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateRole(ctx context.Context, userID uuid.UUID, role Role) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET role = $2 WHERE id = $1`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) OrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]OrganizationMembership, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT organization_id, role FROM organization_memberships WHERE user_id = $1 ORDER BY organization_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []OrganizationMembership
	for rows.Next() {
		var row OrganizationMembership
		if err := rows.Scan(&row.OrganizationID, &row.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return memberships, nil
}
