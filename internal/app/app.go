// Package app wires stores and services for the HTTP server and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/directory"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity"
	identityrepo "github.com/ovaphlow/pitchfork/service-hostlink-go/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/maintenance"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/unlock"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/database"
)

// App holds the services of one process.
type App struct {
	Store       repo.Store
	Identity    *identity.Service
	Accounts    *account.Service
	Unlock      *unlock.Service
	Directory   *directory.Service
	Maintenance *maintenance.Service

	closers []func() error
}

// Wire builds the services on top of an account store and an identity repo.
func Wire(store repo.Store, ids identity.Repo, cfg config.Config, logger *zap.SugaredLogger) *App {
	accounts := account.NewService(store, logger)
	tokens := identity.NewTokens([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)
	idSvc := identity.NewService(ids, tokens, accounts, nil, logger)
	policy := maintenance.DefaultPreservePolicy().WithEmails(cfg.PreserveEmails...)
	return &App{
		Store:       store,
		Identity:    idSvc,
		Accounts:    accounts,
		Unlock:      unlock.NewService(store, logger),
		Directory:   directory.NewService(store, logger),
		Maintenance: maintenance.NewService(store, idSvc, policy, logger),
	}
}

// New connects the configured backends. Identities always live in Postgres;
// account records live in the backend named by STORE_BACKEND.
func New(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*App, error) {
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	db, err := database.Connect(cfg.Postgres)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, db.Close)

	ids := identityrepo.NewIdentityRepo(db)
	if err := ids.EnsureTable(ctx); err != nil {
		return fail(fmt.Errorf("ensure identities table: %w", err))
	}

	store, closeStore, err := openStore(ctx, cfg, db)
	if err != nil {
		return fail(err)
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	logger.Infow("stores ready", "accounts", cfg.StoreBackend, "identities", config.BackendPostgres)

	a := Wire(store, ids, cfg, logger)
	a.closers = closers
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, db *sqlx.DB) (repo.Store, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		c, err := database.ConnectRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewRedisStore(c, cfg.Redis.Prefix), c.Close, nil
	case config.BackendMongo:
		c, err := database.ConnectMongo(cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		s := repo.NewMongoStore(c.Database(cfg.Mongo.Database))
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = c.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ensure account indexes: %w", err)
		}
		return s, func() error { return c.Disconnect(context.Background()) }, nil
	default:
		s := repo.NewPostgresStore(db)
		if err := s.EnsureTable(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure accounts table: %w", err)
		}
		return s, nil, nil
	}
}

// Close releases every backend connection in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
