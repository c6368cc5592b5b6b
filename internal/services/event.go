package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/apolmig/smartqr-backend/internal/data/cache"
	"github.com/apolmig/smartqr-backend/internal/data/db"
	eventrepo "github.com/apolmig/smartqr-backend/internal/data/repos/event"
	recordrepo "github.com/apolmig/smartqr-backend/internal/data/repos/record"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/observability"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/pkg/retry"
)

type EventInput struct {
	VariantID      *uuid.UUID
	UserAgent      string
	IP             string
	Device         string
	OS             string
	Browser        string
	AdditionalData datatypes.JSON
}

type EventService interface {
	// RecordEvent appends a scan event and bumps the record's counters in
	// one transaction. Best effort: failures are logged and swallowed so the
	// redirect that triggered the scan is never blocked on bookkeeping.
	RecordEvent(ctx context.Context, recordID uuid.UUID, in EventInput)
}

type eventService struct {
	dbs     *db.Service
	log     *logger.Logger
	events  eventrepo.ScanEventRepo
	records recordrepo.RecordRepo
	cache   *cache.Store
	exec    *retry.Executor
	diag    *observability.Diagnostics
}

func NewEventService(
	dbs *db.Service,
	baseLog *logger.Logger,
	events eventrepo.ScanEventRepo,
	records recordrepo.RecordRepo,
	cacheStore *cache.Store,
	exec *retry.Executor,
	diag *observability.Diagnostics,
) EventService {
	return &eventService{
		dbs:     dbs,
		log:     baseLog.With("service", "EventService"),
		events:  events,
		records: records,
		cache:   cacheStore,
		exec:    exec,
		diag:    diag,
	}
}

func (s *eventService) RecordEvent(ctx context.Context, recordID uuid.UUID, in EventInput) {
	start := time.Now()
	err := s.recordEvent(ctx, recordID, in)
	s.diag.Operation("record_event", start, nil, err)
	if err != nil {
		// Swallowed on purpose. A lost event is a statistics gap, not a
		// failed scan.
		s.log.Warn("failed to record scan event", "record_id", recordID, "error", err)
	}
}

func (s *eventService) recordEvent(ctx context.Context, recordID uuid.UUID, in EventInput) error {
	now := time.Now().UTC()
	var rec *domain.Record
	err := s.exec.Do(ctx, "record_event", func(ctx context.Context) error {
		return s.dbs.Write().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			ev := &domain.ScanEvent{
				RecordID:       recordID,
				VariantID:      in.VariantID,
				UserAgent:      in.UserAgent,
				IP:             in.IP,
				Device:         in.Device,
				OS:             in.OS,
				Browser:        in.Browser,
				AdditionalData: in.AdditionalData,
			}
			if _, err := s.events.Create(dbc, ev); err != nil {
				return err
			}
			if err := s.records.IncrementScanStats(dbc, recordID, now); err != nil {
				return err
			}
			var err error
			rec, err = s.records.GetByIDWrite(dbc, recordID)
			return err
		})
	})
	if err != nil {
		return err
	}
	// Both cached views of the record now carry a stale scan count; drop
	// them so the next lookup re-reads.
	if rec != nil {
		s.cache.InvalidateRecord(rec.ShortKey)
		s.cache.InvalidateUserRecords(rec.UserID)
		s.diag.Metrics.CacheInvalidate("record")
		s.diag.Metrics.CacheInvalidate("user_records")
	}
	return nil
}
