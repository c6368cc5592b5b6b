package record

import (
	"github.com/google/uuid"

	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

type VariantRepo interface {
	Create(dbc dbctx.Context, v *domain.Variant) (*domain.Variant, error)
	ListActiveByRecord(dbc dbctx.Context, recordID uuid.UUID) ([]*domain.Variant, error)
	DeleteByRecord(dbc dbctx.Context, recordID uuid.UUID) error
}

type variantRepo struct {
	dbs *db.Service
	log *logger.Logger
}

func NewVariantRepo(dbs *db.Service, baseLog *logger.Logger) VariantRepo {
	return &variantRepo{dbs: dbs, log: baseLog.With("repo", "VariantRepo")}
}

func (vr *variantRepo) Create(dbc dbctx.Context, v *domain.Variant) (*domain.Variant, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = vr.dbs.Write()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

func (vr *variantRepo) ListActiveByRecord(dbc dbctx.Context, recordID uuid.UUID) ([]*domain.Variant, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = vr.dbs.Read()
	}
	var rows []*domain.Variant
	if err := transaction.WithContext(dbc.Ctx).
		Where("record_id = ? AND is_active = ?", recordID, true).
		Order("weight DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (vr *variantRepo) DeleteByRecord(dbc dbctx.Context, recordID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = vr.dbs.Write()
	}
	return transaction.WithContext(dbc.Ctx).
		Where("record_id = ?", recordID).
		Delete(&domain.Variant{}).Error
}
