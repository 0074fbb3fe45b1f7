// Package identity turns credentials into subject ids. Identities live in the
// `identities` table; the subject id is shared with the account record.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	acctentity "github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity/repo"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Repo is the persistence the service needs; *repo.IdentityRepo satisfies it.
type Repo interface {
	Create(ctx context.Context, i *entity.Identity) error
	GetByEmail(ctx context.Context, email string) (*entity.Identity, error)
	GetByID(ctx context.Context, id string) (*entity.Identity, error)
	IncrementFailedLogin(ctx context.Context, id string) (int, error)
	LockIfThreshold(ctx context.Context, id string, threshold, lockMinutes int) (bool, error)
	UnlockIfExpired(ctx context.Context, id string) (bool, error)
	ResetLoginSuccess(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// AccountProvisioner creates the account record that pairs with an identity.
type AccountProvisioner interface {
	Ensure(ctx context.Context, id string, role acctentity.Role, email string) (*acctentity.Account, error)
}

var (
	ErrNotFound          = repo.ErrNotFound
	ErrEmailTaken        = repo.ErrEmailTaken
	ErrInvalidCredential = errors.New("invalid credential")
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrLocked            = errors.New("identity locked")
	ErrDisabled          = errors.New("identity disabled")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrWeakPassword      = errors.New("password too short")
	ErrRoleNotAllowed    = errors.New("role cannot be chosen at signup")
)

const minPasswordLen = 8

// Session is what a successful signup or login hands back.
type Session struct {
	Subject     string          `json:"subject"`
	Role        acctentity.Role `json:"role"`
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
}

// Service orchestrates signup, login and credential verification.
type Service struct {
	repo     Repo
	hasher   PasswordHasher
	tokens   *Tokens
	accounts AccountProvisioner
	logger   *zap.SugaredLogger
	// configuration knobs
	MaxFailed   int
	LockMinutes int
}

func NewService(r Repo, tokens *Tokens, accounts AccountProvisioner, hasher PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, hasher: hasher, tokens: tokens, accounts: accounts, logger: logger, MaxFailed: 6, LockMinutes: 15}
}

// Signup registers an identity and its account record. Only PARTICIPANT and
// HOST may be chosen; an empty role means PARTICIPANT.
func (s *Service) Signup(ctx context.Context, email, password string, role acctentity.Role) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	if role == "" {
		role = acctentity.RoleParticipant
	}
	if role != acctentity.RoleParticipant && role != acctentity.RoleHost {
		return nil, ErrRoleNotAllowed
	}

	hash, algo, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id := &entity.Identity{
		ID:           ksuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		PasswordAlgo: algo,
		Status:       entity.StatusActive,
	}
	if err := s.repo.Create(ctx, id); err != nil {
		return nil, err
	}
	acct, err := s.accounts.Ensure(ctx, id.ID, role, email)
	if err != nil {
		return nil, fmt.Errorf("provision account %s: %w", id.ID, err)
	}
	s.logger.Infow("identity registered", "subject", id.ID, "role", acct.Role)
	return s.session(id.ID, acct.Role)
}

// Login authenticates by email and password. The first successful login
// creates a PARTICIPANT account record if none exists yet.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}

	// Expired lock auto-unlock attempt
	if u.Status == entity.StatusLocked && u.LockedUntil != nil && u.LockedUntil.Before(time.Now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = entity.StatusActive
			u.LockedUntil = nil
		}
	}
	switch u.Status {
	case entity.StatusLocked:
		return nil, ErrLocked
	case entity.StatusDisabled:
		return nil, ErrDisabled
	}

	if !s.hasher.Verify(u.PasswordHash, password) {
		attempts, err := s.repo.IncrementFailedLogin(ctx, u.ID)
		if err != nil {
			s.logger.Warnw("failed login not recorded", "subject", u.ID, "err", err)
			return nil, ErrBadCredentials
		}
		if attempts >= s.MaxFailed {
			if locked, _ := s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockMinutes); locked {
				s.logger.Infow("identity locked", "subject", u.ID, "attempts", attempts)
				return nil, ErrLocked
			}
		}
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		s.logger.Warnw("login success not recorded", "subject", u.ID, "err", err)
	}
	acct, err := s.accounts.Ensure(ctx, u.ID, acctentity.RoleParticipant, u.Email)
	if err != nil {
		return nil, fmt.Errorf("provision account %s: %w", u.ID, err)
	}
	return s.session(u.ID, acct.Role)
}

func (s *Service) session(subject string, role acctentity.Role) (*Session, error) {
	tok, err := s.tokens.Issue(subject)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{
		Subject:     subject,
		Role:        role,
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
	}, nil
}

// Verify maps a bearer credential to its subject id. Tokens of deleted or
// disabled identities are rejected.
func (s *Service) Verify(ctx context.Context, credential string) (string, error) {
	sub, err := s.tokens.Parse(credential)
	if err != nil {
		return "", err
	}
	u, err := s.repo.GetByID(ctx, sub)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrInvalidCredential
		}
		return "", err
	}
	if u.Status == entity.StatusDisabled {
		return "", ErrInvalidCredential
	}
	return sub, nil
}

// DeleteIdentity removes the identity for subjectID; ErrNotFound if absent.
func (s *Service) DeleteIdentity(ctx context.Context, subjectID string) error {
	return s.repo.Delete(ctx, subjectID)
}

// Describe returns the operator view of an identity.
func (s *Service) Describe(ctx context.Context, subjectID string) (*entity.Summary, error) {
	u, err := s.repo.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return u.Summary(), nil
}
