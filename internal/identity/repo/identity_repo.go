package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity/entity"
)

var (
	ErrNotFound   = errors.New("identity not found")
	ErrEmailTaken = errors.New("email already registered")
)

// IdentityRepo provides data access for the identities table using sqlx.
type IdentityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepo(db *sqlx.DB) *IdentityRepo { return &IdentityRepo{db: db} }

// EnsureTable creates the identities table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *IdentityRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS identities (
  id TEXT PRIMARY KEY,
  email CITEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  password_algo TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const identityColumns = `id, email, password_hash, password_algo, status, login_failed_attempts,
	locked_until, last_login_at, created_at, updated_at`

// Create inserts a new identity row.
func (r *IdentityRepo) Create(ctx context.Context, i *entity.Identity) error {
	const q = `INSERT INTO identities (id, email, password_hash, password_algo, status)
		VALUES (:id, :email, :password_hash, :password_algo, :status)`
	if _, err := r.db.NamedExecContext(ctx, q, i); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// GetByEmail matches case-insensitively thanks to citext.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email=$1`, email)
}

func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*entity.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id=$1`, id)
}

func (r *IdentityRepo) getOne(ctx context.Context, q string, arg any) (*entity.Identity, error) {
	var row entity.Identity
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// IncrementFailedLogin bumps the failure counter and returns the new value.
func (r *IdentityRepo) IncrementFailedLogin(ctx context.Context, id string) (int, error) {
	const q = `UPDATE identities SET login_failed_attempts = login_failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING login_failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockIfThreshold locks an active identity once attempts reach threshold.
func (r *IdentityRepo) LockIfThreshold(ctx context.Context, id string, threshold, lockMinutes int) (bool, error) {
	const q = `UPDATE identities SET status='locked', locked_until = NOW() + ($2 || ' minutes')::interval, updated_at=NOW()
		WHERE id=$1 AND status='active' AND login_failed_attempts >= $3 RETURNING 1`
	return r.updateReturning(ctx, q, id, lockMinutes, threshold)
}

// UnlockIfExpired reactivates an identity whose lock window has passed.
func (r *IdentityRepo) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE identities SET status='active', locked_until=NULL, login_failed_attempts=0, updated_at=NOW()
		WHERE id=$1 AND status='locked' AND locked_until IS NOT NULL AND locked_until < NOW() RETURNING 1`
	return r.updateReturning(ctx, q, id)
}

func (r *IdentityRepo) updateReturning(ctx context.Context, q string, args ...any) (bool, error) {
	var one int
	if err := r.db.GetContext(ctx, &one, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResetLoginSuccess clears failure metrics after a successful login.
func (r *IdentityRepo) ResetLoginSuccess(ctx context.Context, id string) error {
	const q = `UPDATE identities SET login_failed_attempts=0, last_login_at=NOW(), locked_until=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// Delete removes the identity; a missing row yields ErrNotFound.
func (r *IdentityRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
