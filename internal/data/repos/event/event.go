package event

import (
	"github.com/google/uuid"

	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

// ScanEventRepo is append-only aside from the cascade delete that follows a
// record's removal.
type ScanEventRepo interface {
	Create(dbc dbctx.Context, ev *domain.ScanEvent) (*domain.ScanEvent, error)
	CountByRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error)
	ListByRecord(dbc dbctx.Context, recordID uuid.UUID, limit int) ([]*domain.ScanEvent, error)
	DeleteByRecord(dbc dbctx.Context, recordID uuid.UUID) error
}

type scanEventRepo struct {
	dbs *db.Service
	log *logger.Logger
}

func NewScanEventRepo(dbs *db.Service, baseLog *logger.Logger) ScanEventRepo {
	return &scanEventRepo{dbs: dbs, log: baseLog.With("repo", "ScanEventRepo")}
}

func (er *scanEventRepo) Create(dbc dbctx.Context, ev *domain.ScanEvent) (*domain.ScanEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = er.dbs.Write()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

func (er *scanEventRepo) CountByRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = er.dbs.Read()
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&domain.ScanEvent{}).
		Where("record_id = ?", recordID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (er *scanEventRepo) ListByRecord(dbc dbctx.Context, recordID uuid.UUID, limit int) ([]*domain.ScanEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = er.dbs.Read()
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("record_id = ?", recordID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*domain.ScanEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (er *scanEventRepo) DeleteByRecord(dbc dbctx.Context, recordID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = er.dbs.Write()
	}
	return transaction.WithContext(dbc.Ctx).
		Where("record_id = ?", recordID).
		Delete(&domain.ScanEvent{}).Error
}
