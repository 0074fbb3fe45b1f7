package entity

import "time"

// Identity is a row in the `identities` table: the credential side of an
// account. The subject id is shared with the account record.
type Identity struct {
	ID                  string     `db:"id"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	PasswordAlgo        string     `db:"password_algo"`
	Status              string     `db:"status"` // active / locked / disabled
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

const (
	StatusActive   = "active"
	StatusLocked   = "locked"
	StatusDisabled = "disabled"
)

// Summary is the operator-facing projection; it never carries the hash.
type Summary struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (i *Identity) Summary() *Summary {
	return &Summary{ID: i.ID, Email: i.Email, Status: i.Status, LastLoginAt: i.LastLoginAt, CreatedAt: i.CreatedAt}
}
