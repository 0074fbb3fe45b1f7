package repo

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

// PostgresStore keeps accounts in the `accounts` table using sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore { return &PostgresStore{db: db} }

// EnsureTable creates the accounts table if not exists (idempotent).
func (r *PostgresStore) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  role TEXT NOT NULL DEFAULT 'participant',
  visible BOOLEAN NOT NULL DEFAULT true,
  email TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  photo_url TEXT NOT NULL DEFAULT '',
  bio TEXT NOT NULL DEFAULT '',
  nationality TEXT NOT NULL DEFAULT '',
  starters TEXT[] NOT NULL DEFAULT '{}',
  interests TEXT[] NOT NULL DEFAULT '{}',
  instagram TEXT NOT NULL DEFAULT '',
  linkedin TEXT NOT NULL DEFAULT '',
  whatsapp TEXT NOT NULL DEFAULT '',
  unlocked_targets TEXT[] NOT NULL DEFAULT '{}',
  unlock_count BIGINT NOT NULL DEFAULT 0 CHECK (unlock_count >= 0),
  last_unlocked_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_role ON accounts(role);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const accountColumns = `id, role, visible, email, name, photo_url, bio, nationality,
	starters, interests, instagram, linkedin, whatsapp,
	unlocked_targets, unlock_count, last_unlocked_at, created_at, updated_at`

type accountRow struct {
	ID              string         `db:"id"`
	Role            string         `db:"role"`
	Visible         bool           `db:"visible"`
	Email           string         `db:"email"`
	Name            string         `db:"name"`
	PhotoURL        string         `db:"photo_url"`
	Bio             string         `db:"bio"`
	Nationality     string         `db:"nationality"`
	Starters        pq.StringArray `db:"starters"`
	Interests       pq.StringArray `db:"interests"`
	Instagram       string         `db:"instagram"`
	LinkedIn        string         `db:"linkedin"`
	WhatsApp        string         `db:"whatsapp"`
	UnlockedTargets pq.StringArray `db:"unlocked_targets"`
	UnlockCount     int64          `db:"unlock_count"`
	LastUnlockedAt  *time.Time     `db:"last_unlocked_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (row *accountRow) toEntity() *entity.Account {
	targets := []string(row.UnlockedTargets)
	if targets == nil {
		targets = []string{}
	}
	return &entity.Account{
		ID:      row.ID,
		Role:    entity.Role(row.Role),
		Visible: row.Visible,
		Email:   row.Email,
		Profile: entity.Profile{
			Name:        row.Name,
			PhotoURL:    row.PhotoURL,
			Bio:         row.Bio,
			Nationality: row.Nationality,
			Starters:    []string(row.Starters),
			Interests:   []string(row.Interests),
			Socials: entity.Socials{
				Instagram: row.Instagram,
				LinkedIn:  row.LinkedIn,
				WhatsApp:  row.WhatsApp,
			},
		},
		UnlockedTargets: targets,
		UnlockCount:     row.UnlockCount,
		LastUnlockedAt:  row.LastUnlockedAt,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

// Get fetches a full account row or ErrNotFound.
func (r *PostgresStore) Get(ctx context.Context, id string) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	var row accountRow
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get account", err)
	}
	return row.toEntity(), nil
}

// Create inserts a new account; an existing id yields ErrAlreadyExists.
func (r *PostgresStore) Create(ctx context.Context, a *entity.Account) error {
	const q = `INSERT INTO accounts (id, role, visible, email, name, photo_url, bio, nationality,
		starters, interests, instagram, linkedin, whatsapp, unlocked_targets, unlock_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO NOTHING`
	p := a.Profile
	res, err := r.db.ExecContext(ctx, q,
		a.ID, string(a.Role), a.Visible, a.Email, p.Name, p.PhotoURL, p.Bio, p.Nationality,
		pq.Array(nonNil(p.Starters)), pq.Array(nonNil(p.Interests)),
		p.Socials.Instagram, p.Socials.LinkedIn, p.Socials.WhatsApp,
		pq.Array(nonNil(a.UnlockedTargets)), a.UnlockCount, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return unavailable("create account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("create account", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func buildQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Role != nil {
		args = append(args, string(*f.Role))
		where = append(where, "role=$"+strconv.Itoa(len(args)))
	}
	if f.Visible != nil {
		args = append(args, *f.Visible)
		where = append(where, "visible=$"+strconv.Itoa(len(args)))
	}
	q := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	return q, args
}

// Query streams rows straight off the cursor; nothing is materialized.
func (r *PostgresStore) Query(ctx context.Context, f Filter) iter.Seq2[*entity.Account, error] {
	return func(yield func(*entity.Account, error) bool) {
		q, args := buildQuery(f)
		rows, err := r.db.QueryxContext(ctx, q, args...)
		if err != nil {
			yield(nil, unavailable("query accounts", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var row accountRow
			if err := rows.StructScan(&row); err != nil {
				if !yield(nil, unavailable("scan account", err)) {
					return
				}
				continue
			}
			if !yield(row.toEntity(), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, unavailable("query accounts", err))
		}
	}
}

// SetMerge applies the non-nil fields of patch. Last write wins.
func (r *PostgresStore) SetMerge(ctx context.Context, id string, patch entity.AccountPatch) error {
	const q = `UPDATE accounts SET
		role = COALESCE($2, role),
		visible = COALESCE($3, visible),
		email = COALESCE($4, email),
		name = COALESCE($5, name),
		photo_url = COALESCE($6, photo_url),
		bio = COALESCE($7, bio),
		nationality = COALESCE($8, nationality),
		starters = COALESCE($9, starters),
		interests = COALESCE($10, interests),
		instagram = COALESCE($11, instagram),
		linkedin = COALESCE($12, linkedin),
		whatsapp = COALESCE($13, whatsapp),
		updated_at = NOW()
		WHERE id=$1`
	var role any
	if patch.Role != nil {
		role = string(*patch.Role)
	}
	var visible any
	if patch.Visible != nil {
		visible = *patch.Visible
	}
	var instagram, linkedin, whatsapp any
	if patch.Socials != nil {
		instagram, linkedin, whatsapp = patch.Socials.Instagram, patch.Socials.LinkedIn, patch.Socials.WhatsApp
	}
	res, err := r.db.ExecContext(ctx, q, id,
		role, visible, nullString(patch.Email), nullString(patch.Name), nullString(patch.PhotoURL),
		nullString(patch.Bio), nullString(patch.Nationality),
		nullArray(patch.Starters), nullArray(patch.Interests),
		instagram, linkedin, whatsapp,
	)
	if err != nil {
		return unavailable("merge account", err)
	}
	return expectOneRow(res, "merge account")
}

// ConditionalAppend adds target to unlocked_targets unless already present.
// The row lock taken by UPDATE makes the membership test and the append a
// single step; a concurrent duplicate re-evaluates the WHERE and matches nothing.
func (r *PostgresStore) ConditionalAppend(ctx context.Context, id, target string) (AppendResult, error) {
	const q = `UPDATE accounts SET unlocked_targets = array_append(unlocked_targets, $2),
		last_unlocked_at = NOW(), updated_at = NOW()
		WHERE id=$1 AND NOT ($2 = ANY(unlocked_targets)) RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id, target)
	if err == nil {
		return Appended, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, unavailable("append unlocked target", err)
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)`, id); err != nil {
		return 0, unavailable("append unlocked target", err)
	}
	if !exists {
		return 0, ErrNotFound
	}
	return AlreadyPresent, nil
}

// IncrementUnlockCount bumps unlock_count by one.
func (r *PostgresStore) IncrementUnlockCount(ctx context.Context, id string) error {
	const q = `UPDATE accounts SET unlock_count = unlock_count + 1, last_unlocked_at = NOW(), updated_at = NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return unavailable("increment unlock count", err)
	}
	return expectOneRow(res, "increment unlock count")
}

// Delete removes the account row.
func (r *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return unavailable("delete account", err)
	}
	return expectOneRow(res, "delete account")
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullArray(p *[]string) any {
	if p == nil {
		return nil
	}
	return pq.Array(nonNil(*p))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
