package record

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"

	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

// RecordRepo spans the pools: plain lookups use the read pool, Write-suffixed
// methods hit the primary, and GetByShortKeyRaw bypasses the ORM entirely
// against the raw read pool. Absent rows are (nil, nil).
type RecordRepo interface {
	Create(dbc dbctx.Context, rec *domain.Record) (*domain.Record, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Record, error)
	GetByIDWrite(dbc dbctx.Context, id uuid.UUID) (*domain.Record, error)
	GetByShortKey(dbc dbctx.Context, shortKey string) (*domain.Record, error)
	GetByShortKeyWrite(dbc dbctx.Context, shortKey string) (*domain.Record, error)
	GetByShortKeyRaw(ctx context.Context, shortKey string) (*domain.Record, error)
	ShortKeyExists(dbc dbctx.Context, shortKey string) (bool, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Record, error)
	ListByUserWrite(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Record, error)
	ListByUserViaRelation(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Record, error)
	CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	Update(dbc dbctx.Context, id uuid.UUID, changes map[string]any) error
	DeleteByID(dbc dbctx.Context, id uuid.UUID) error
	IncrementScanStats(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type recordRepo struct {
	dbs *db.Service
	log *logger.Logger
}

func NewRecordRepo(dbs *db.Service, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{dbs: dbs, log: baseLog.With("repo", "RecordRepo")}
}

func (rr *recordRepo) Create(dbc dbctx.Context, rec *domain.Record) (*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Write()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

func (rr *recordRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Read()
	}
	return firstRecord(transaction.WithContext(dbc.Ctx).Where("id = ?", id))
}

func (rr *recordRepo) GetByIDWrite(dbc dbctx.Context, id uuid.UUID) (*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Write()
	}
	return firstRecord(transaction.WithContext(dbc.Ctx).Where("id = ?", id))
}

func (rr *recordRepo) GetByShortKey(dbc dbctx.Context, shortKey string) (*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Read()
	}
	return firstRecord(transaction.WithContext(dbc.Ctx).Where("short_key = ?", shortKey))
}

func (rr *recordRepo) GetByShortKeyWrite(dbc dbctx.Context, shortKey string) (*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Write()
	}
	return firstRecord(transaction.WithContext(dbc.Ctx).Where("short_key = ?", shortKey))
}

// GetByShortKeyRaw is the last-resort read fallback: a hand-written query on
// the pgx pool, immune to any query-builder caching quirk.
func (rr *recordRepo) GetByShortKeyRaw(ctx context.Context, shortKey string) (*domain.Record, error) {
	const q = `
		SELECT id, short_key, user_id, name, target, is_active,
		       enable_smart_routing, style_options, scan_count,
		       last_activity_at, created_at
		FROM records
		WHERE short_key = $1`
	row := rr.dbs.Raw().QueryRow(ctx, q, shortKey)
	var rec domain.Record
	err := row.Scan(
		&rec.ID, &rec.ShortKey, &rec.UserID, &rec.Name, &rec.Target,
		&rec.IsActive, &rec.EnableSmartRouting, &rec.StyleOptions,
		&rec.ScanCount, &rec.LastActivityAt, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (rr *recordRepo) ShortKeyExists(dbc dbctx.Context, shortKey string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		// Existence checks guard key assignment, so they must see the
		// primary's truth, not a lagging replica.
		transaction = rr.dbs.Write()
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("short_key = ?", shortKey).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (rr *recordRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Read()
	}
	return findRecords(transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC"))
}

func (rr *recordRepo) ListByUserWrite(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Write()
	}
	return findRecords(transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC"))
}

// ListByUserViaRelation fetches through a join on users. Same data, different
// query plan; the final fallback when direct table queries keep coming back
// empty.
func (rr *recordRepo) ListByUserViaRelation(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Record, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Read()
	}
	return findRecords(transaction.WithContext(dbc.Ctx).
		Joins("JOIN users ON users.id = records.user_id").
		Where("users.id = ?", userID).
		Order("records.created_at DESC"))
}

func (rr *recordRepo) CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Read()
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (rr *recordRepo) Update(dbc dbctx.Context, id uuid.UUID, changes map[string]any) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Write()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("id = ?", id).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (rr *recordRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Write()
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&domain.Record{}).Error
}

// IncrementScanStats bumps the counter SQL-side. Two concurrent scans must
// both land; a read-modify-write in Go would lose one.
func (rr *recordRepo) IncrementScanStats(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = rr.dbs.Write()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&domain.Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"scan_count":       gorm.Expr("scan_count + 1"),
			"last_activity_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func firstRecord(q *gorm.DB) (*domain.Record, error) {
	var rec domain.Record
	if err := q.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func findRecords(q *gorm.DB) ([]*domain.Record, error) {
	var rows []*domain.Record
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
