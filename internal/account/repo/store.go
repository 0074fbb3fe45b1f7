package repo

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

var (
	ErrNotFound         = errors.New("account not found")
	ErrAlreadyExists    = errors.New("account already exists")
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// AppendResult is the outcome of a conditional set append.
type AppendResult int

const (
	Appended AppendResult = iota + 1
	AlreadyPresent
)

func (r AppendResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case AlreadyPresent:
		return "already_present"
	}
	return "unknown"
}

// Filter narrows Query. Nil fields match everything.
type Filter struct {
	Role    *entity.Role
	Visible *bool
}

// ByRole is a convenience for Filter{Role: &r}.
func ByRole(r entity.Role) Filter { return Filter{Role: &r} }

// Matches reports whether a satisfies the filter.
func (f Filter) Matches(a *entity.Account) bool {
	if f.Role != nil && a.Role != *f.Role {
		return false
	}
	if f.Visible != nil && a.Visible != *f.Visible {
		return false
	}
	return true
}

// Store is the account record store contract.
//
// ConditionalAppend must be atomic per record: of any number of concurrent
// calls for the same (id, value) pair exactly one observes Appended.
// IncrementUnlockCount is a store-side increment, never read-modify-write.
type Store interface {
	Get(ctx context.Context, id string) (*entity.Account, error)
	Create(ctx context.Context, a *entity.Account) error
	// Query streams matching accounts. Row-level failures are yielded with a
	// nil account and iteration continues.
	Query(ctx context.Context, f Filter) iter.Seq2[*entity.Account, error]
	SetMerge(ctx context.Context, id string, patch entity.AccountPatch) error
	ConditionalAppend(ctx context.Context, id, target string) (AppendResult, error)
	IncrementUnlockCount(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
