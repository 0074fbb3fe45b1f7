// Package account owns the account record lifecycle: provisioning on first
// authentication and owner/admin profile edits.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
)

var (
	ErrForbidden    = errors.New("not allowed to edit this account")
	ErrInvalidPatch = errors.New("invalid profile update")
)

type Service struct {
	store  repo.Store
	logger *zap.SugaredLogger
}

func NewService(store repo.Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, logger: logger}
}

// Ensure returns the account for id, creating it with role and email when
// it does not exist yet. An existing record keeps its role.
func (s *Service) Ensure(ctx context.Context, id string, role entity.Role, email string) (*entity.Account, error) {
	a, err := s.store.Get(ctx, id)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	a = entity.NewAccount(id, role, email, time.Now().UTC())
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return s.store.Get(ctx, id)
		}
		return nil, err
	}
	s.logger.Infow("account created", "id", id, "role", role)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Account, error) {
	return s.store.Get(ctx, id)
}

// ProfileUpdate is the wire form of a partial profile edit.
type ProfileUpdate struct {
	Role        *string         `json:"role,omitempty"`
	Visible     *bool           `json:"visible,omitempty"`
	Name        *string         `json:"name,omitempty"`
	PhotoURL    *string         `json:"photo_url,omitempty"`
	Bio         *string         `json:"bio,omitempty"`
	Nationality *string         `json:"nationality,omitempty"`
	Starters    *[]string       `json:"starters,omitempty"`
	Interests   *[]string       `json:"interests,omitempty"`
	Socials     *entity.Socials `json:"socials,omitempty"`
}

// NormalizeStarters trims entries, drops blanks and keeps at most MaxStarters.
func NormalizeStarters(in []string) []string {
	out := make([]string, 0, entity.MaxStarters)
	for _, s := range in {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == entity.MaxStarters {
			break
		}
	}
	return out
}

func (u ProfileUpdate) patch() (entity.AccountPatch, error) {
	p := entity.AccountPatch{
		Visible:     u.Visible,
		Name:        u.Name,
		PhotoURL:    u.PhotoURL,
		Bio:         u.Bio,
		Nationality: u.Nationality,
		Interests:   u.Interests,
		Socials:     u.Socials,
	}
	if u.Role != nil {
		r, ok := entity.ParseRole(*u.Role)
		if !ok {
			return p, fmt.Errorf("%w: unknown role %q", ErrInvalidPatch, *u.Role)
		}
		p.Role = &r
	}
	if u.Starters != nil {
		st := NormalizeStarters(*u.Starters)
		p.Starters = &st
	}
	if p.IsEmpty() {
		return p, fmt.Errorf("%w: nothing to change", ErrInvalidPatch)
	}
	return p, nil
}

// UpdateProfile applies u to targetID on behalf of actorID. Owners edit their
// own record; ADMIN edits any record and is the only one allowed to change a role.
func (s *Service) UpdateProfile(ctx context.Context, actorID, targetID string, u ProfileUpdate) (*entity.Account, error) {
	p, err := u.patch()
	if err != nil {
		return nil, err
	}
	actor, err := s.store.Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	isAdmin := actor.Role == entity.RoleAdmin
	if actorID != targetID && !isAdmin {
		return nil, ErrForbidden
	}
	if p.Role != nil && !isAdmin {
		return nil, ErrForbidden
	}

	if err := s.store.SetMerge(ctx, targetID, p); err != nil {
		return nil, err
	}
	s.logger.Infow("profile updated", "actor", actorID, "target", targetID)
	return s.store.Get(ctx, targetID)
}
