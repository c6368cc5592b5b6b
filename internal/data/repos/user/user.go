package user

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

// UserRepo reads against the read-oriented pool by default; methods with a
// Write suffix hit the primary, for the fallbacks that must see their own
// writes. Absent rows come back as (nil, nil): the caller cannot distinguish
// "does not exist" from "not yet visible".
type UserRepo interface {
	Create(dbc dbctx.Context, u *domain.User) (*domain.User, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(dbc dbctx.Context, email string) (*domain.User, error)
	GetByEmailWrite(dbc dbctx.Context, email string) (*domain.User, error)
	EmailExists(dbc dbctx.Context, email string) (bool, error)
	// LockForUpdate takes a row lock on the user inside the supplied
	// transaction, serializing concurrent record creation per user.
	LockForUpdate(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
}

type userRepo struct {
	dbs *db.Service
	log *logger.Logger
}

func NewUserRepo(dbs *db.Service, baseLog *logger.Logger) UserRepo {
	return &userRepo{dbs: dbs, log: baseLog.With("repo", "UserRepo")}
}

func (ur *userRepo) Create(dbc dbctx.Context, u *domain.User) (*domain.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.dbs.Write()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (ur *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.dbs.Read()
	}
	return firstUser(transaction.WithContext(dbc.Ctx).Where("id = ?", id))
}

func (ur *userRepo) GetByEmail(dbc dbctx.Context, email string) (*domain.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.dbs.Read()
	}
	return firstUser(transaction.WithContext(dbc.Ctx).Where("email = ?", email))
}

func (ur *userRepo) GetByEmailWrite(dbc dbctx.Context, email string) (*domain.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.dbs.Write()
	}
	return firstUser(transaction.WithContext(dbc.Ctx).Where("email = ?", email))
}

func (ur *userRepo) EmailExists(dbc dbctx.Context, email string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.dbs.Read()
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&domain.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) LockForUpdate(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = ur.dbs.Write()
	}
	return firstUser(transaction.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func firstUser(q *gorm.DB) (*domain.User, error) {
	var u domain.User
	if err := q.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
