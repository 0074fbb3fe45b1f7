// Package directory assembles the host listing a viewer is allowed to see.
package directory

import (
	"context"
	"errors"
	"iter"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/visibility"
)

// ProjectedProfile is a host as one viewer sees it. A locked entry carries
// only ID, Name and FirstStarter; a full entry adds Profile and UnlockCount.
type ProjectedProfile struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	FirstStarter string          `json:"first_starter,omitempty"`
	IsUnlocked   bool            `json:"is_unlocked"`
	Profile      *entity.Profile `json:"profile,omitempty"`
	UnlockCount  *int64          `json:"unlock_count,omitempty"`
}

// Project shapes a according to d. Hidden yields ok=false.
func Project(a *entity.Account, d visibility.Decision) (ProjectedProfile, bool) {
	switch d {
	case visibility.Locked:
		return ProjectedProfile{ID: a.ID, Name: a.Profile.Name, FirstStarter: a.Profile.FirstStarter()}, true
	case visibility.Full:
		p := a.Profile
		n := a.UnlockCount
		return ProjectedProfile{
			ID:           a.ID,
			Name:         p.Name,
			FirstStarter: p.FirstStarter(),
			IsUnlocked:   true,
			Profile:      &p,
			UnlockCount:  &n,
		}, true
	}
	return ProjectedProfile{}, false
}

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

type viewer struct {
	role     entity.Role
	unlocked visibility.UnlockSet
}

var anonymous = viewer{role: entity.RoleParticipant}

// viewerFor loads the viewer's role and unlock set. An empty id or a failed
// lookup yields an anonymous participant with nothing unlocked.
func (s *Service) viewerFor(ctx context.Context, viewerID string) viewer {
	if viewerID == "" {
		return anonymous
	}
	a, err := s.store.Get(ctx, viewerID)
	if err != nil {
		s.logger.Warnw("viewer lookup failed, listing as anonymous", "viewer", viewerID, "err", err)
		return anonymous
	}
	return viewer{role: a.Role, unlocked: visibility.NewUnlockSet(a.UnlockedTargets)}
}

// ListTargets streams every host visible to viewerID. The sequence is lazy,
// can be ranged over more than once and has no ordering guarantee. Accounts
// the store fails to return are left out.
func (s *Service) ListTargets(ctx context.Context, viewerID string) iter.Seq[ProjectedProfile] {
	return func(yield func(ProjectedProfile) bool) {
		v := s.viewerFor(ctx, viewerID)
		for a, err := range s.store.Query(ctx, repo.ByRole(entity.RoleHost)) {
			if err != nil {
				s.logger.Warnw("skipping unreadable account", "err", err)
				continue
			}
			d := visibility.Decide(v.role, v.unlocked, a.ID, a.Role, a.Visible)
			p, ok := Project(a, d)
			if !ok {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Profile returns a single host as viewerID sees it. Missing, non-host and
// hidden targets all report repo.ErrNotFound.
func (s *Service) Profile(ctx context.Context, viewerID, targetID string) (ProjectedProfile, error) {
	a, err := s.store.Get(ctx, targetID)
	if err != nil {
		return ProjectedProfile{}, err
	}
	v := s.viewerFor(ctx, viewerID)
	p, ok := Project(a, visibility.Decide(v.role, v.unlocked, a.ID, a.Role, a.Visible))
	if !ok {
		return ProjectedProfile{}, repo.ErrNotFound
	}
	return p, nil
}

// IsNotFound reports whether err means the profile does not exist for the viewer.
func IsNotFound(err error) bool { return errors.Is(err, repo.ErrNotFound) }
