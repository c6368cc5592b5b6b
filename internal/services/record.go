package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/apolmig/smartqr-backend/internal/data/cache"
	"github.com/apolmig/smartqr-backend/internal/data/consistency"
	"github.com/apolmig/smartqr-backend/internal/data/db"
	recordrepo "github.com/apolmig/smartqr-backend/internal/data/repos/record"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/observability"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	apperrors "github.com/apolmig/smartqr-backend/internal/pkg/errors"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
	"github.com/apolmig/smartqr-backend/internal/pkg/retry"
	"github.com/apolmig/smartqr-backend/internal/pkg/shortkey"
)

const (
	// MaxKeyAttempts bounds short key re-rolls on collision before the
	// operation gives up.
	MaxKeyAttempts = 10

	// DefaultReadLagDelay is the pause between the first and second read-pool
	// attempts in GetUserRecords, sized to cover typical replica lag.
	DefaultReadLagDelay = 150 * time.Millisecond
)

type CreateRecordInput struct {
	Name               string
	Target             string
	EnableSmartRouting bool
	StyleOptions       datatypes.JSON
	Variants           []VariantInput
}

type VariantInput struct {
	Target     string
	Weight     int
	Conditions datatypes.JSON
}

// UpdateRecordInput carries partial changes; nil fields are left untouched.
type UpdateRecordInput struct {
	Name               *string
	Target             *string
	IsActive           *bool
	EnableSmartRouting *bool
	StyleOptions       datatypes.JSON
}

type RecordStats struct {
	RecordID       uuid.UUID  `json:"record_id"`
	ScanCount      int64      `json:"scan_count"`
	EventCount     int64      `json:"event_count"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

type RecordService interface {
	// CreateRecord assigns a fresh short key and persists the record inside
	// a write transaction that enforces the owner's plan ceiling under a row
	// lock. The returned warnings are advisory read-side visibility notes;
	// a committed write always returns the record even when replicas lag.
	CreateRecord(ctx context.Context, id UserIdentity, in CreateRecordInput) (*domain.Record, []string, error)

	// GetUserRecords lists the caller's records, falling back through
	// progressively stronger read strategies so a record created moments ago
	// is not silently missing.
	GetUserRecords(ctx context.Context, id UserIdentity) ([]*domain.Record, error)

	// GetRecordByKey resolves a short key for the redirect hot path.
	// Absent (or syntactically invalid) keys return (nil, nil).
	GetRecordByKey(ctx context.Context, shortKey string) (*domain.Record, error)

	UpdateRecord(ctx context.Context, id UserIdentity, recordID uuid.UUID, in UpdateRecordInput) (*domain.Record, error)
	DeleteRecord(ctx context.Context, id UserIdentity, recordID uuid.UUID) error
	GetActiveVariants(ctx context.Context, recordID uuid.UUID) ([]*domain.Variant, error)
	GetRecordStats(ctx context.Context, id UserIdentity, recordID uuid.UUID) (*RecordStats, error)
}

type recordService struct {
	dbs      *db.Service
	log      *logger.Logger
	users    UserService
	userRows userLocker
	records  recordrepo.RecordRepo
	variants recordrepo.VariantRepo
	events   eventStore
	cache    *cache.Store
	verifier *consistency.Verifier
	exec     *retry.Executor
	diag     *observability.Diagnostics

	readLagDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// userLocker is the slice of UserRepo the plan ceiling check needs.
type userLocker interface {
	LockForUpdate(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
}

// eventStore is the slice of ScanEventRepo this service needs: the delete
// cascade and the stats count.
type eventStore interface {
	DeleteByRecord(dbc dbctx.Context, recordID uuid.UUID) error
	CountByRecord(dbc dbctx.Context, recordID uuid.UUID) (int64, error)
}

func NewRecordService(
	dbs *db.Service,
	baseLog *logger.Logger,
	users UserService,
	userRows userLocker,
	records recordrepo.RecordRepo,
	variants recordrepo.VariantRepo,
	events eventStore,
	cacheStore *cache.Store,
	verifier *consistency.Verifier,
	exec *retry.Executor,
	diag *observability.Diagnostics,
) RecordService {
	return &recordService{
		dbs:          dbs,
		log:          baseLog.With("service", "RecordService"),
		users:        users,
		userRows:     userRows,
		records:      records,
		variants:     variants,
		events:       events,
		cache:        cacheStore,
		verifier:     verifier,
		exec:         exec,
		diag:         diag,
		readLagDelay: DefaultReadLagDelay,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

func (s *recordService) CreateRecord(ctx context.Context, id UserIdentity, in CreateRecordInput) (*domain.Record, []string, error) {
	start := time.Now()
	rec, warnings, err := s.createRecord(ctx, id, in)
	s.diag.Operation("create_record", start, warnings, err)
	return rec, warnings, err
}

func (s *recordService) createRecord(ctx context.Context, id UserIdentity, in CreateRecordInput) (*domain.Record, []string, error) {
	if in.Target == "" {
		return nil, nil, fmt.Errorf("%w: target is required", apperrors.ErrInvalidArgument)
	}
	for _, v := range in.Variants {
		if v.Target == "" {
			return nil, nil, fmt.Errorf("%w: variant target is required", apperrors.ErrInvalidArgument)
		}
	}

	user, err := s.users.EnsureUser(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var rec *domain.Record
	for keyAttempt := 1; keyAttempt <= MaxKeyAttempts; keyAttempt++ {
		key := shortkey.Generate()

		// Existence pre-check on the primary. Cheap filter only; the unique
		// index is what actually prevents a duplicate key.
		taken, err := s.records.ShortKeyExists(dbctx.Context{Ctx: ctx}, key)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			s.log.Debug("short key already taken, re-rolling", "attempt", keyAttempt)
			continue
		}

		rec, err = retry.Do(ctx, s.exec, "create_record.insert", func(ctx context.Context) (*domain.Record, error) {
			return s.insertRecord(ctx, user, key, in)
		})
		if err != nil {
			if retry.IsUniqueViolation(err) {
				s.log.Debug("short key collided on insert, re-rolling", "attempt", keyAttempt)
				continue
			}
			return nil, nil, err
		}
		break
	}
	if rec == nil {
		return nil, nil, apperrors.ErrKeyGenerationExhausted
	}

	warnings := s.verifyCreateVisibility(ctx, rec)

	s.cache.PutRecord(rec)
	s.cache.InvalidateUserRecords(user.ID)
	s.diag.Metrics.CacheInvalidate("user_records")
	s.diag.Metrics.SetCacheSize(s.cache.Size())

	return rec, warnings, nil
}

// insertRecord runs the creation transaction: lock the owner row, count
// against the plan ceiling, insert, and re-read through the same transaction
// as a self-check. The FOR UPDATE lock serializes concurrent creates per
// user, so the ceiling cannot be overshot by a race.
func (s *recordService) insertRecord(ctx context.Context, user *domain.User, key string, in CreateRecordInput) (*domain.Record, error) {
	var out *domain.Record
	err := s.dbs.Write().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		locked, err := s.userRows.LockForUpdate(dbc, user.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return fmt.Errorf("owner %s: %w", user.ID, apperrors.ErrNotFound)
		}

		ceiling := locked.Plan.RecordCeiling()
		if ceiling != domain.UnlimitedRecords {
			count, err := s.records.CountByUser(dbc, user.ID)
			if err != nil {
				return err
			}
			if count >= int64(ceiling) {
				return fmt.Errorf("%w: %d of %d records used", apperrors.ErrPlanLimitExceeded, count, ceiling)
			}
		}

		rec := &domain.Record{
			ShortKey:           key,
			UserID:             user.ID,
			Name:               in.Name,
			Target:             in.Target,
			IsActive:           true,
			EnableSmartRouting: in.EnableSmartRouting,
			StyleOptions:       in.StyleOptions,
		}
		if _, err := s.records.Create(dbc, rec); err != nil {
			return err
		}

		for _, v := range in.Variants {
			weight := v.Weight
			if weight <= 0 {
				weight = 1
			}
			variant := &domain.Variant{
				RecordID:   rec.ID,
				Target:     v.Target,
				Weight:     weight,
				Conditions: v.Conditions,
				IsActive:   true,
			}
			if _, err := s.variants.Create(dbc, variant); err != nil {
				return err
			}
		}

		// Self re-read inside the transaction. If this misses, the insert is
		// broken in a way a replica probe could never explain; abort.
		check, err := s.records.GetByIDWrite(dbc, rec.ID)
		if err != nil {
			return err
		}
		if check == nil {
			return fmt.Errorf("record %s not visible in own transaction", rec.ID)
		}
		out = check
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// verifyCreateVisibility probes the read pool for the freshly committed
// record. Misses become warnings on the response, never errors; the write is
// already durable on the primary.
func (s *recordService) verifyCreateVisibility(ctx context.Context, rec *domain.Record) []string {
	results := s.verifier.VerifyAll(ctx, map[string]consistency.Probe{
		"record_by_short_key": func(ctx context.Context) (bool, error) {
			found, err := s.records.GetByShortKey(dbctx.Context{Ctx: ctx}, rec.ShortKey)
			return found != nil, err
		},
		"record_in_user_list": func(ctx context.Context) (bool, error) {
			rows, err := s.records.ListByUser(dbctx.Context{Ctx: ctx}, rec.UserID)
			if err != nil {
				return false, err
			}
			for _, row := range rows {
				if row.ID == rec.ID {
					return true, nil
				}
			}
			return false, nil
		},
	})

	var warnings []string
	for name, res := range results {
		s.diag.Consistency(name, res.Consistent, res.Attempts)
		if !res.Consistent {
			warnings = append(warnings, fmt.Sprintf("%s: write not yet visible on read replica after %d probes", name, res.Attempts))
		}
	}
	return warnings
}

func (s *recordService) GetUserRecords(ctx context.Context, id UserIdentity) ([]*domain.Record, error) {
	start := time.Now()
	rows, err := s.getUserRecords(ctx, id)
	s.diag.Operation("get_user_records", start, nil, err)
	return rows, err
}

// getUserRecords walks four read strategies in order of cost: read pool,
// read pool after a lag pause, write pool, then the users-join fallback on
// the write pool. A non-empty result wins immediately. Only non-empty
// results are cached so an empty-because-lagging replica answer never pins
// itself for a TTL.
func (s *recordService) getUserRecords(ctx context.Context, id UserIdentity) ([]*domain.Record, error) {
	user, err := s.users.EnsureUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if rows, ok := s.cache.GetUserRecords(user.ID); ok {
		s.diag.Metrics.CacheHit("user_records")
		return rows, nil
	}
	s.diag.Metrics.CacheMiss("user_records")

	type strategy struct {
		name  string
		delay time.Duration
		fetch func(dbc dbctx.Context) ([]*domain.Record, error)
	}
	strategies := []strategy{
		{name: "read", fetch: func(dbc dbctx.Context) ([]*domain.Record, error) {
			return s.records.ListByUser(dbc, user.ID)
		}},
		{name: "read_after_delay", delay: s.readLagDelay, fetch: func(dbc dbctx.Context) ([]*domain.Record, error) {
			return s.records.ListByUser(dbc, user.ID)
		}},
		{name: "write", fetch: func(dbc dbctx.Context) ([]*domain.Record, error) {
			return s.records.ListByUserWrite(dbc, user.ID)
		}},
		{name: "write_via_relation", fetch: func(dbc dbctx.Context) ([]*domain.Record, error) {
			return s.records.ListByUserViaRelation(dbc, user.ID)
		}},
	}

	var (
		lastRows []*domain.Record
		lastErr  error
		anyOK    bool
	)
	for _, st := range strategies {
		if st.delay > 0 {
			if err := s.sleep(ctx, st.delay); err != nil {
				return nil, err
			}
		}
		rows, err := st.fetch(dbctx.Context{Ctx: ctx})
		if err != nil {
			s.log.Warn("record list strategy failed", "strategy", st.name, "user_id", user.ID, "error", err)
			lastErr = err
			continue
		}
		anyOK = true
		lastRows = rows
		if len(rows) > 0 {
			if st.name != "read" {
				s.log.Info("record list served by fallback strategy", "strategy", st.name, "user_id", user.ID, "count", len(rows))
			}
			s.cache.PutUserRecords(user.ID, rows)
			return rows, nil
		}
	}
	if !anyOK {
		return nil, lastErr
	}
	// Every strategy agreed the user has no records.
	return lastRows, nil
}

func (s *recordService) GetRecordByKey(ctx context.Context, key string) (*domain.Record, error) {
	start := time.Now()
	rec, err := s.getRecordByKey(ctx, key)
	s.diag.Operation("get_record_by_key", start, nil, err)
	return rec, err
}

// getRecordByKey is the redirect hot path: cache, read pool, write pool,
// then the raw driver as the last resort. A syntactically invalid key is a
// miss without touching the database.
func (s *recordService) getRecordByKey(ctx context.Context, key string) (*domain.Record, error) {
	if !shortkey.Valid(key) {
		return nil, nil
	}

	if rec, ok := s.cache.GetRecord(key); ok {
		s.diag.Metrics.CacheHit("record")
		return rec, nil
	}
	s.diag.Metrics.CacheMiss("record")

	rec, err := s.records.GetByShortKey(dbctx.Context{Ctx: ctx}, key)
	if err == nil && rec != nil {
		s.cache.PutRecord(rec)
		return rec, nil
	}
	if err != nil {
		s.log.Warn("read pool lookup failed, falling back to primary", "error", err)
	}

	rec, werr := s.records.GetByShortKeyWrite(dbctx.Context{Ctx: ctx}, key)
	if werr == nil && rec != nil {
		s.log.Info("short key resolved on primary only", "short_key", key)
		s.cache.PutRecord(rec)
		return rec, nil
	}
	if werr != nil {
		s.log.Warn("primary lookup failed, falling back to raw driver", "error", werr)
	}

	rec, rerr := s.records.GetByShortKeyRaw(ctx, key)
	if rerr == nil {
		if rec != nil {
			s.log.Info("short key resolved by raw fallback", "short_key", key)
			s.cache.PutRecord(rec)
			return rec, nil
		}
		// A raw miss is authoritative: the raw pool reads the same data the
		// ORM paths do, without the ORM in the way.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if werr != nil {
		return nil, werr
	}
	return nil, rerr
}

func (s *recordService) UpdateRecord(ctx context.Context, id UserIdentity, recordID uuid.UUID, in UpdateRecordInput) (*domain.Record, error) {
	start := time.Now()
	rec, err := s.updateRecord(ctx, id, recordID, in)
	s.diag.Operation("update_record", start, nil, err)
	return rec, err
}

func (s *recordService) updateRecord(ctx context.Context, id UserIdentity, recordID uuid.UUID, in UpdateRecordInput) (*domain.Record, error) {
	user, err := s.users.EnsureUser(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.ownedRecord(ctx, user, recordID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if in.Name != nil {
		changes["name"] = *in.Name
	}
	if in.Target != nil {
		if *in.Target == "" {
			return nil, fmt.Errorf("%w: target cannot be empty", apperrors.ErrInvalidArgument)
		}
		changes["target"] = *in.Target
	}
	if in.IsActive != nil {
		changes["is_active"] = *in.IsActive
	}
	if in.EnableSmartRouting != nil {
		changes["enable_smart_routing"] = *in.EnableSmartRouting
	}
	if in.StyleOptions != nil {
		changes["style_options"] = in.StyleOptions
	}
	if len(changes) == 0 {
		return rec, nil
	}

	err = s.exec.Do(ctx, "update_record", func(ctx context.Context) error {
		return s.records.Update(dbctx.Context{Ctx: ctx}, recordID, changes)
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.records.GetByIDWrite(dbctx.Context{Ctx: ctx}, recordID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.ErrNotFoundOrForbidden
	}

	s.cache.InvalidateRecord(rec.ShortKey)
	s.cache.InvalidateUserRecords(user.ID)
	s.diag.Metrics.CacheInvalidate("record")
	s.cache.PutRecord(updated)
	return updated, nil
}

func (s *recordService) DeleteRecord(ctx context.Context, id UserIdentity, recordID uuid.UUID) error {
	start := time.Now()
	err := s.deleteRecord(ctx, id, recordID)
	s.diag.Operation("delete_record", start, nil, err)
	return err
}

// deleteRecord removes the record with its variants and events in one
// transaction. Ownership is checked against the primary first so a lagging
// replica can never make a legitimate delete look forbidden.
func (s *recordService) deleteRecord(ctx context.Context, id UserIdentity, recordID uuid.UUID) error {
	user, err := s.users.EnsureUser(ctx, id)
	if err != nil {
		return err
	}
	rec, err := s.ownedRecord(ctx, user, recordID)
	if err != nil {
		return err
	}

	err = s.exec.Do(ctx, "delete_record", func(ctx context.Context) error {
		return s.dbs.Write().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			if err := s.events.DeleteByRecord(dbc, recordID); err != nil {
				return err
			}
			if err := s.variants.DeleteByRecord(dbc, recordID); err != nil {
				return err
			}
			return s.records.DeleteByID(dbc, recordID)
		})
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateRecord(rec.ShortKey)
	s.cache.InvalidateUserRecords(user.ID)
	s.diag.Metrics.CacheInvalidate("record")
	s.diag.Metrics.SetCacheSize(s.cache.Size())
	return nil
}

func (s *recordService) GetActiveVariants(ctx context.Context, recordID uuid.UUID) ([]*domain.Variant, error) {
	start := time.Now()
	rows, err := s.variants.ListActiveByRecord(dbctx.Context{Ctx: ctx}, recordID)
	s.diag.Operation("get_active_variants", start, nil, err)
	return rows, err
}

func (s *recordService) GetRecordStats(ctx context.Context, id UserIdentity, recordID uuid.UUID) (*RecordStats, error) {
	start := time.Now()
	stats, err := s.getRecordStats(ctx, id, recordID)
	s.diag.Operation("get_record_stats", start, nil, err)
	return stats, err
}

func (s *recordService) getRecordStats(ctx context.Context, id UserIdentity, recordID uuid.UUID) (*RecordStats, error) {
	user, err := s.users.EnsureUser(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.ownedRecord(ctx, user, recordID)
	if err != nil {
		return nil, err
	}

	eventCount, err := s.events.CountByRecord(dbctx.Context{Ctx: ctx}, recordID)
	if err != nil {
		return nil, err
	}
	return &RecordStats{
		RecordID:       rec.ID,
		ScanCount:      rec.ScanCount,
		EventCount:     eventCount,
		LastActivityAt: rec.LastActivityAt,
	}, nil
}

// ownedRecord fetches on the primary and checks ownership. Missing and
// foreign are deliberately indistinguishable to the caller.
func (s *recordService) ownedRecord(ctx context.Context, user *domain.User, recordID uuid.UUID) (*domain.Record, error) {
	rec, err := s.records.GetByIDWrite(dbctx.Context{Ctx: ctx}, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UserID != user.ID {
		return nil, apperrors.ErrNotFoundOrForbidden
	}
	return rec, nil
}
