package services

import (
	"context"
	"fmt"
	"time"

	"github.com/apolmig/smartqr-backend/internal/data/cache"
	"github.com/apolmig/smartqr-backend/internal/data/db"
	userrepo "github.com/apolmig/smartqr-backend/internal/data/repos/user"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	apperrors "github.com/apolmig/smartqr-backend/internal/pkg/errors"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/pkg/retry"
	"github.com/apolmig/smartqr-backend/internal/observability"
	"gorm.io/gorm"
)

// UserIdentity is how callers name a user. Email is the idempotency key; an
// empty Email falls back to the identifier, which the original callers pass
// as an email anyway.
type UserIdentity struct {
	Identifier string
	Name       string
	Email      string
}

func (id UserIdentity) email() string {
	e := id.Email
	if e == "" {
		e = id.Identifier
	}
	return cache.NormalizeEmail(e)
}

type UserService interface {
	// EnsureUser returns the user for the identity, creating the row on
	// first reference. Concurrent calls with the same email converge to one
	// row; the unique constraint plus a re-read on conflict is the final
	// guard.
	EnsureUser(ctx context.Context, id UserIdentity) (*domain.User, error)
}

type userService struct {
	dbs   *db.Service
	log   *logger.Logger
	users userrepo.UserRepo
	cache *cache.Store
	exec  *retry.Executor
	diag  *observability.Diagnostics
}

func NewUserService(
	dbs *db.Service,
	baseLog *logger.Logger,
	users userrepo.UserRepo,
	cacheStore *cache.Store,
	exec *retry.Executor,
	diag *observability.Diagnostics,
) UserService {
	return &userService{
		dbs:   dbs,
		log:   baseLog.With("service", "UserService"),
		users: users,
		cache: cacheStore,
		exec:  exec,
		diag:  diag,
	}
}

func (s *userService) EnsureUser(ctx context.Context, id UserIdentity) (*domain.User, error) {
	start := time.Now()
	u, err := s.ensureUser(ctx, id)
	s.diag.Operation("ensure_user", start, nil, err)
	return u, err
}

func (s *userService) ensureUser(ctx context.Context, id UserIdentity) (*domain.User, error) {
	email := id.email()
	if email == "" {
		return nil, fmt.Errorf("%w: empty user identity", apperrors.ErrInvalidArgument)
	}

	if u, ok := s.cache.GetUser(email); ok {
		s.diag.Metrics.CacheHit("user")
		return u, nil
	}
	s.diag.Metrics.CacheMiss("user")

	u, err := retry.Do(ctx, s.exec, "ensure_user.read", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByEmail(dbctx.Context{Ctx: ctx}, email)
	})
	if err != nil {
		return nil, err
	}
	if u != nil {
		s.cache.PutUser(u)
		return u, nil
	}

	name := id.Name
	if name == "" {
		name = email
	}

	created, err := retry.Do(ctx, s.exec, "ensure_user.create", func(ctx context.Context) (*domain.User, error) {
		return s.createUser(ctx, email, name)
	})
	if err != nil {
		return nil, err
	}
	s.cache.PutUser(created)
	return created, nil
}

// createUser inserts inside a transaction that re-checks absence first, the
// guard against concurrent first-time creation. A unique violation on insert
// means someone else won the race; re-read and use their row.
func (s *userService) createUser(ctx context.Context, email, name string) (*domain.User, error) {
	var out *domain.User
	err := s.dbs.Write().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, err := s.users.GetByEmailWrite(dbc, email)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		u := &domain.User{
			Email: email,
			Name:  name,
			Plan:  domain.PlanBase,
		}
		if _, err := s.users.Create(dbc, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		if retry.IsUniqueViolation(err) {
			s.log.Debug("concurrent user creation detected, re-reading", "email", email)
			existing, rerr := s.users.GetByEmailWrite(dbctx.Context{Ctx: ctx}, email)
			if rerr != nil {
				return nil, rerr
			}
			if existing != nil {
				return existing, nil
			}
			return nil, fmt.Errorf("user vanished after unique conflict: %w", apperrors.ErrNotFound)
		}
		return nil, err
	}
	return out, nil
}
