// Package maintenance removes low-quality accounts on operator request and
// reports on data quality. Every deletion touches two systems, the account
// store and the identity store, with no transaction spanning them.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity"
	identityentity "github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/quality"
)

// Mode selects the candidates of a sweep.
type Mode string

const (
	CleanupInactiveParticipants Mode = "cleanup_inactive_participants"
	CleanupEmptyHosts           Mode = "cleanup_empty_hosts"
	CleanupAllExceptPreserved   Mode = "cleanup_all_except_preserved"
)

var Modes = []Mode{CleanupInactiveParticipants, CleanupEmptyHosts, CleanupAllExceptPreserved}

var ErrUnknownMode = errors.New("unknown sweep mode")

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Identities is the slice of the identity service maintenance needs.
type Identities interface {
	DeleteIdentity(ctx context.Context, subjectID string) error
	Describe(ctx context.Context, subjectID string) (*identityentity.Summary, error)
}

// Result reports one sweep. Errors counts every failure: unreadable records,
// failed record deletions and identities left behind after their record was
// deleted. IdentityErrors is the share of Errors from the last kind.
type Result struct {
	Mode           Mode     `json:"mode" yaml:"mode"`
	Scanned        int      `json:"scanned" yaml:"scanned"`
	Matched        int      `json:"matched" yaml:"matched"`
	Preserved      int      `json:"preserved" yaml:"preserved"`
	Deleted        int      `json:"deleted" yaml:"deleted"`
	Errors         int      `json:"errors" yaml:"errors"`
	IdentityErrors int      `json:"identity_errors" yaml:"identity_errors"`
	DeletedIDs     []string `json:"deleted_ids,omitempty" yaml:"deleted_ids,omitempty"`
}

type Service struct {
	store      repo.Store
	identities Identities
	policy     PreservePolicy
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewService(store repo.Store, identities Identities, policy PreservePolicy, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, identities: identities, policy: policy, logger: logger, now: time.Now}
}

// Policy is the configured preserve policy.
func (s *Service) Policy() PreservePolicy { return s.policy }

// Sweep runs mode with the configured preserve policy.
func (s *Service) Sweep(ctx context.Context, mode Mode) (Result, error) {
	return s.SweepWithPolicy(ctx, mode, s.policy)
}

// SweepWithPolicy collects every candidate first and then deletes them one by
// one. A failed deletion is counted and the sweep moves on; a record that is
// already gone is skipped. Running the same mode again only matches accounts
// that became candidates in between.
func (s *Service) SweepWithPolicy(ctx context.Context, mode Mode, policy PreservePolicy) (Result, error) {
	res := Result{Mode: mode}
	filter, match, err := s.selector(mode, policy)
	if err != nil {
		return res, err
	}

	var candidates []string
	for a, err := range s.store.Query(ctx, filter) {
		if err != nil {
			res.Errors++
			s.logger.Warnw("sweep scan error", "mode", mode, "err", err)
			continue
		}
		res.Scanned++
		if match(a) {
			candidates = append(candidates, a.ID)
		} else if mode == CleanupAllExceptPreserved {
			res.Preserved++
		}
	}
	res.Matched = len(candidates)
	s.logger.Infow("sweep candidates collected", "mode", mode, "scanned", res.Scanned, "matched", res.Matched)

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			s.logger.Warnw("sweep interrupted", "mode", mode, "deleted", res.Deleted, "remaining", res.Matched-res.Deleted)
			return res, err
		}
		deleted, identityErr, err := s.deleteBoth(ctx, id)
		switch {
		case err != nil:
			res.Errors++
			s.logger.Warnw("account not deleted", "mode", mode, "id", id, "err", err)
			continue
		case !deleted:
			continue
		}
		res.Deleted++
		res.DeletedIDs = append(res.DeletedIDs, id)
		if identityErr != nil {
			res.Errors++
			res.IdentityErrors++
		}
	}
	s.logger.Infow("sweep finished", "mode", mode, "deleted", res.Deleted, "errors", res.Errors, "identity_errors", res.IdentityErrors)
	return res, nil
}

func (s *Service) selector(mode Mode, policy PreservePolicy) (repo.Filter, func(*entity.Account) bool, error) {
	switch mode {
	case CleanupInactiveParticipants:
		return repo.ByRole(entity.RoleParticipant), quality.IsInactiveParticipant, nil
	case CleanupEmptyHosts:
		return repo.ByRole(entity.RoleHost), quality.IsEmptyHost, nil
	case CleanupAllExceptPreserved:
		return repo.Filter{}, func(a *entity.Account) bool { return !policy.Preserves(a) }, nil
	}
	return repo.Filter{}, nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// deleteBoth removes the record and then the identity. deleted is false when
// the record was already gone. A missing identity is not an error.
func (s *Service) deleteBoth(ctx context.Context, id string) (deleted bool, identityErr, err error) {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if err := s.identities.DeleteIdentity(ctx, id); err != nil && !errors.Is(err, identity.ErrNotFound) {
		s.logger.Warnw("identity left behind", "id", id, "err", err)
		return true, err, nil
	}
	return true, nil, nil
}

// DeleteOutcome reports an explicit delete.
type DeleteOutcome struct {
	ID              string `json:"id"`
	IdentityDeleted bool   `json:"identity_deleted"`
	IdentityError   string `json:"identity_error,omitempty"`
}

// DeleteAccount removes one account and its identity. repo.ErrNotFound when
// the record does not exist; identity failures are reported in the outcome.
func (s *Service) DeleteAccount(ctx context.Context, id string) (DeleteOutcome, error) {
	out := DeleteOutcome{ID: id}
	deleted, identityErr, err := s.deleteBoth(ctx, id)
	if err != nil {
		return out, err
	}
	if !deleted {
		return out, repo.ErrNotFound
	}
	if identityErr != nil {
		out.IdentityError = identityErr.Error()
	} else {
		out.IdentityDeleted = true
	}
	s.logger.Infow("account deleted", "id", id, "identity_deleted", out.IdentityDeleted)
	return out, nil
}

// Details is the operator view of one account.
type Details struct {
	Account             *entity.Account         `json:"account"`
	Identity            *identityentity.Summary `json:"identity,omitempty"`
	Completeness        string                  `json:"completeness"`
	EmptyHost           bool                    `json:"empty_host"`
	InactiveParticipant bool                    `json:"inactive_participant"`
	Preserved           bool                    `json:"preserved"`
}

func (s *Service) AccountDetails(ctx context.Context, id string) (*Details, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Details{
		Account:             a,
		Completeness:        quality.ProfileCompleteness(a.Profile).String(),
		EmptyHost:           quality.IsEmptyHost(a),
		InactiveParticipant: quality.IsInactiveParticipant(a),
		Preserved:           s.policy.Preserves(a),
	}
	sum, err := s.identities.Describe(ctx, id)
	switch {
	case err == nil:
		d.Identity = sum
	case errors.Is(err, identity.ErrNotFound):
	default:
		s.logger.Warnw("identity lookup failed", "id", id, "err", err)
	}
	return d, nil
}

// Stats tallies every account in the store. Unreadable records are skipped.
func (s *Service) Stats(ctx context.Context) (quality.Report, error) {
	t := quality.NewTally(s.now())
	for a, err := range s.store.Query(ctx, repo.Filter{}) {
		if err != nil {
			s.logger.Warnw("stats scan error", "err", err)
			continue
		}
		t.Add(a)
	}
	return t.Report(), ctx.Err()
}
