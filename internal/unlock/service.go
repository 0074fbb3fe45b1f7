package unlock

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
)

// Status is the successful outcome of an unlock.
type Status int

const (
	UnlockedNow Status = iota + 1
	AlreadyUnlocked
)

func (s Status) String() string {
	switch s {
	case UnlockedNow:
		return "UNLOCKED_NOW"
	case AlreadyUnlocked:
		return "ALREADY_UNLOCKED"
	}
	return "UNKNOWN"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrInvalidViewer = errors.New("viewer cannot unlock this target")
	ErrInvalidTarget = errors.New("target is not available for unlock")
)

// Service performs the one-way viewer→host unlock.
//
// The viewer's set is the source of truth: the conditional append decides
// which caller wins, and only the winner bumps the host's counter. A failed
// counter write leaves the counter short by one, never the set.
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

// Unlock records that viewerID has unlocked targetID. Repeating the call for
// the same pair returns AlreadyUnlocked and writes nothing.
//
// Errors: ErrInvalidViewer for self-unlock, repo.ErrNotFound when the target
// or the viewer does not exist, ErrInvalidTarget for a non-host or hidden
// target, repo.ErrStoreUnavailable for transient failures (safe to retry).
func (s *Service) Unlock(ctx context.Context, viewerID, targetID string) (Status, error) {
	if viewerID == "" || viewerID == targetID {
		return 0, ErrInvalidViewer
	}
	if targetID == "" {
		return 0, ErrInvalidTarget
	}

	target, err := s.store.Get(ctx, targetID)
	if err != nil {
		return 0, fmt.Errorf("load target %s: %w", targetID, err)
	}
	if target.Role != entity.RoleHost || !target.Visible {
		return 0, ErrInvalidTarget
	}

	viewer, err := s.store.Get(ctx, viewerID)
	if err != nil {
		return 0, fmt.Errorf("load viewer %s: %w", viewerID, err)
	}
	if viewer.HasUnlocked(targetID) {
		return AlreadyUnlocked, nil
	}

	res, err := s.store.ConditionalAppend(ctx, viewerID, targetID)
	if err != nil {
		return 0, fmt.Errorf("record unlock %s->%s: %w", viewerID, targetID, err)
	}
	if res == repo.AlreadyPresent {
		s.logger.Debugw("lost unlock race", "viewer", viewerID, "target", targetID)
		return AlreadyUnlocked, nil
	}

	if err := s.store.IncrementUnlockCount(ctx, targetID); err != nil {
		s.logger.Warnw("unlock count not incremented", "viewer", viewerID, "target", targetID, "err", err)
	}
	s.logger.Infow("profile unlocked", "viewer", viewerID, "target", targetID)
	return UnlockedNow, nil
}

// IsUnlocked reports whether viewerID has recorded an unlock of targetID.
func (s *Service) IsUnlocked(ctx context.Context, viewerID, targetID string) (bool, error) {
	viewer, err := s.store.Get(ctx, viewerID)
	if err != nil {
		return false, fmt.Errorf("load viewer %s: %w", viewerID, err)
	}
	return viewer.HasUnlocked(targetID), nil
}
