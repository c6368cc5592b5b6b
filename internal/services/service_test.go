package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apolmig/smartqr-backend/internal/data/cache"
	"github.com/apolmig/smartqr-backend/internal/data/consistency"
	"github.com/apolmig/smartqr-backend/internal/data/db"
	eventrepo "github.com/apolmig/smartqr-backend/internal/data/repos/event"
	recordrepo "github.com/apolmig/smartqr-backend/internal/data/repos/record"
	"github.com/apolmig/smartqr-backend/internal/data/repos/testutil"
	userrepo "github.com/apolmig/smartqr-backend/internal/data/repos/user"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/observability"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
	apperrors "github.com/apolmig/smartqr-backend/internal/pkg/errors"
	"github.com/apolmig/smartqr-backend/internal/pkg/retry"
	"github.com/apolmig/smartqr-backend/internal/pkg/shortkey"
)

type harness struct {
	dbs     *db.Service
	users   UserService
	records RecordService
	events  EventService

	userRepo   userrepo.UserRepo
	recordRepo recordrepo.RecordRepo
	eventRepo  eventrepo.ScanEventRepo
	cache      *cache.Store
}

// newHarness wires the full service stack against the test database. The
// services commit for real, so every test registers its users for cleanup;
// the FK cascade removes their records and events.
func newHarness(t *testing.T) *harness {
	t.Helper()
	dbs := testutil.Service(t)
	log := testutil.Logger(t)

	store := cache.New(log, cache.Config{
		Capacity:           1000,
		NumShards:          8,
		TTL:                time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   time.Minute,
	})
	metrics := observability.NewMetrics()
	ops := observability.NewOperationLog(log, 64)
	t.Cleanup(ops.Close)
	diag := observability.NewDiagnostics(log, metrics, ops)

	exec := retry.New(log, retry.WithMaxAttempts(3), retry.WithBaseDelay(5*time.Millisecond))
	verifier := consistency.New(log, consistency.WithMaxAttempts(3), consistency.WithBaseDelay(5*time.Millisecond))

	ur := userrepo.NewUserRepo(dbs, log)
	rr := recordrepo.NewRecordRepo(dbs, log)
	vr := recordrepo.NewVariantRepo(dbs, log)
	er := eventrepo.NewScanEventRepo(dbs, log)

	users := NewUserService(dbs, log, ur, store, exec, diag)
	records := NewRecordService(dbs, log, users, ur, rr, vr, er, store, verifier, exec, diag)
	events := NewEventService(dbs, log, er, rr, store, exec, diag)

	return &harness{
		dbs:        dbs,
		users:      users,
		records:    records,
		events:     events,
		userRepo:   ur,
		recordRepo: rr,
		eventRepo:  er,
		cache:      store,
	}
}

func (h *harness) identity(t *testing.T) UserIdentity {
	t.Helper()
	email := fmt.Sprintf("svc-%s@example.com", uuid.NewString())
	t.Cleanup(func() {
		err := h.dbs.Write().Where("email = ?", email).Delete(&domain.User{}).Error
		if err != nil {
			t.Logf("cleanup of %s failed: %v", email, err)
		}
	})
	return UserIdentity{Identifier: email, Name: "Service Test"}
}

func TestEnsureUserIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	first, err := h.users.EnsureUser(ctx, id)
	if err != nil {
		t.Fatalf("first EnsureUser: %v", err)
	}
	if first.Plan != domain.PlanBase {
		t.Fatalf("new user plan = %s, want %s", first.Plan, domain.PlanBase)
	}

	// Same address, different case and padding.
	shouted := UserIdentity{Identifier: "  " + toUpper(id.Identifier) + "  "}
	second, err := h.users.EnsureUser(ctx, shouted)
	if err != nil {
		t.Fatalf("second EnsureUser: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("EnsureUser returned two different users: %s vs %s", first.ID, second.ID)
	}
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func TestCreateRecordAndResolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	rec, warnings, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
		Name:   "landing page",
		Target: "https://example.com/landing",
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	for _, w := range warnings {
		t.Logf("visibility warning: %s", w)
	}
	if !shortkey.Valid(rec.ShortKey) {
		t.Fatalf("generated key %q is not valid", rec.ShortKey)
	}
	if !rec.IsActive {
		t.Fatal("new record should be active")
	}
	if rec.ScanCount != 0 {
		t.Fatalf("new record scan count = %d, want 0", rec.ScanCount)
	}

	got, err := h.records.GetRecordByKey(ctx, rec.ShortKey)
	if err != nil {
		t.Fatalf("GetRecordByKey: %v", err)
	}
	if got == nil || got.ID != rec.ID {
		t.Fatalf("GetRecordByKey returned %+v, want record %s", got, rec.ID)
	}

	rows, err := h.records.GetUserRecords(ctx, id)
	if err != nil {
		t.Fatalf("GetUserRecords: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.ID == rec.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("created record missing from user listing of %d rows", len(rows))
	}
}

func TestCreateRecordWithVariants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	rec, _, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
		Target:             "https://example.com/a-b",
		EnableSmartRouting: true,
		Variants: []VariantInput{
			{Target: "https://example.com/a", Weight: 3},
			{Target: "https://example.com/b"},
		},
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	variants, err := h.records.GetActiveVariants(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetActiveVariants: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(variants))
	}
	if variants[0].Weight < variants[1].Weight {
		t.Fatal("variants not ordered by weight descending")
	}
}

func TestCreateRecordPlanCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	ceiling := domain.PlanBase.RecordCeiling()
	for i := 0; i < ceiling; i++ {
		_, _, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
			Target: fmt.Sprintf("https://example.com/%d", i),
		})
		if err != nil {
			t.Fatalf("create %d of %d: %v", i+1, ceiling, err)
		}
	}

	_, _, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
		Target: "https://example.com/over",
	})
	if !apperrors.IsPlanLimitExceeded(err) {
		t.Fatalf("create past ceiling: got %v, want plan limit error", err)
	}
}

func TestCreateRecordConcurrentAtCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	ceiling := domain.PlanBase.RecordCeiling()
	for i := 0; i < ceiling-1; i++ {
		_, _, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
			Target: fmt.Sprintf("https://example.com/seed-%d", i),
		})
		if err != nil {
			t.Fatalf("seeding record %d: %v", i, err)
		}
	}

	// One slot left. Of two concurrent creates, the row lock must let
	// exactly one through.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = h.records.CreateRecord(ctx, id, CreateRecordInput{
				Target: fmt.Sprintf("https://example.com/race-%d", i),
			})
		}(i)
	}
	wg.Wait()

	successes, limited := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperrors.IsPlanLimitExceeded(err):
			limited++
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	if successes != 1 || limited != 1 {
		t.Fatalf("got %d successes and %d limit errors, want exactly 1 of each", successes, limited)
	}
}

func TestConcurrentCreatesGetDistinctKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	const n = 5
	keys := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
				Target: fmt.Sprintf("https://example.com/parallel-%d", i),
			})
			errs[i] = err
			if rec != nil {
				keys[i] = rec.ShortKey
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("concurrent create %d: %v", i, errs[i])
		}
		if seen[keys[i]] {
			t.Fatalf("duplicate short key %q handed out", keys[i])
		}
		seen[keys[i]] = true
	}
}

func TestRecordEventIncrementsScanStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	rec, _, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
		Target: "https://example.com/scanned",
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	// Prime both cached views so the assertions below prove the scans
	// invalidated them.
	if _, err := h.records.GetRecordByKey(ctx, rec.ShortKey); err != nil {
		t.Fatalf("priming key cache: %v", err)
	}
	if _, err := h.records.GetUserRecords(ctx, id); err != nil {
		t.Fatalf("priming list cache: %v", err)
	}

	for i := 0; i < 3; i++ {
		h.events.RecordEvent(ctx, rec.ID, EventInput{
			UserAgent: "test-agent",
			Device:    "mobile",
		})
	}

	after, err := h.recordRepo.GetByIDWrite(dbctx.Context{Ctx: ctx}, rec.ID)
	if err != nil {
		t.Fatalf("re-read record: %v", err)
	}
	if after.ScanCount != 3 {
		t.Fatalf("scan count = %d, want 3", after.ScanCount)
	}
	if after.LastActivityAt == nil {
		t.Fatal("last activity timestamp not set")
	}

	stats, err := h.records.GetRecordStats(ctx, id, rec.ID)
	if err != nil {
		t.Fatalf("GetRecordStats: %v", err)
	}
	if stats.EventCount != 3 {
		t.Fatalf("event count = %d, want 3", stats.EventCount)
	}
	if stats.ScanCount != 3 {
		t.Fatalf("stats scan count = %d, want 3", stats.ScanCount)
	}

	// The cached views primed above must have been dropped by the scans.
	byKey, err := h.records.GetRecordByKey(ctx, rec.ShortKey)
	if err != nil {
		t.Fatalf("GetRecordByKey after scans: %v", err)
	}
	if byKey == nil || byKey.ScanCount != 3 {
		t.Fatalf("key lookup served stale record: %+v", byKey)
	}
	rows, err := h.records.GetUserRecords(ctx, id)
	if err != nil {
		t.Fatalf("GetUserRecords after scans: %v", err)
	}
	var listed *domain.Record
	for _, row := range rows {
		if row.ID == rec.ID {
			listed = row
		}
	}
	if listed == nil {
		t.Fatal("scanned record missing from user listing")
	}
	if listed.ScanCount != 3 {
		t.Fatalf("listed scan count = %d, want 3", listed.ScanCount)
	}
	if listed.LastActivityAt == nil {
		t.Fatal("listed record missing last activity timestamp")
	}
}

func TestRecordEventUnknownRecordIsSwallowed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// FK violation inside the event transaction must not escape.
	h.events.RecordEvent(ctx, uuid.New(), EventInput{UserAgent: "ghost"})
}

func TestUpdateRecordOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.identity(t)
	stranger := h.identity(t)

	rec, _, err := h.records.CreateRecord(ctx, owner, CreateRecordInput{
		Name:   "before",
		Target: "https://example.com/before",
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	if _, err := h.records.UpdateRecord(ctx, stranger, rec.ID, UpdateRecordInput{
		Name: strPtr("hijacked"),
	}); !apperrors.IsNotFoundOrForbidden(err) {
		t.Fatalf("foreign update: got %v, want not-found-or-forbidden", err)
	}

	// Prime both cached views so the post-update lookups prove invalidation.
	if _, err := h.records.GetRecordByKey(ctx, rec.ShortKey); err != nil {
		t.Fatalf("priming key cache: %v", err)
	}
	if _, err := h.records.GetUserRecords(ctx, owner); err != nil {
		t.Fatalf("priming list cache: %v", err)
	}

	updated, err := h.records.UpdateRecord(ctx, owner, rec.ID, UpdateRecordInput{
		Name:     strPtr("after"),
		Target:   strPtr("https://example.com/after"),
		IsActive: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.Name != "after" || updated.Target != "https://example.com/after" || updated.IsActive {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.ShortKey != rec.ShortKey {
		t.Fatal("short key must never change on update")
	}

	// Subsequent lookups must reflect the mutation, not the primed caches.
	byKey, err := h.records.GetRecordByKey(ctx, rec.ShortKey)
	if err != nil {
		t.Fatalf("GetRecordByKey after update: %v", err)
	}
	if byKey == nil || byKey.Target != "https://example.com/after" || byKey.IsActive {
		t.Fatalf("key lookup served stale record: %+v", byKey)
	}
	rows, err := h.records.GetUserRecords(ctx, owner)
	if err != nil {
		t.Fatalf("GetUserRecords after update: %v", err)
	}
	found := false
	for _, row := range rows {
		if row.ID == rec.ID {
			found = true
			if row.Name != "after" {
				t.Fatalf("user listing served stale name %q", row.Name)
			}
		}
	}
	if !found {
		t.Fatal("updated record missing from user listing")
	}
}

func TestDeleteRecordCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.identity(t)

	rec, _, err := h.records.CreateRecord(ctx, id, CreateRecordInput{
		Target: "https://example.com/doomed",
		Variants: []VariantInput{
			{Target: "https://example.com/doomed-a"},
		},
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	h.events.RecordEvent(ctx, rec.ID, EventInput{UserAgent: "pre-delete"})

	if err := h.records.DeleteRecord(ctx, id, rec.ID); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}

	got, err := h.records.GetRecordByKey(ctx, rec.ShortKey)
	if err != nil {
		t.Fatalf("lookup after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("record still resolvable after delete: %+v", got)
	}

	count, err := h.eventRepo.CountByRecord(dbctx.Context{Ctx: ctx}, rec.ID)
	if err != nil {
		t.Fatalf("counting events after delete: %v", err)
	}
	if count != 0 {
		t.Fatalf("%d events survived the delete", count)
	}

	if err := h.records.DeleteRecord(ctx, id, rec.ID); !apperrors.IsNotFoundOrForbidden(err) {
		t.Fatalf("second delete: got %v, want not-found-or-forbidden", err)
	}
}

func TestGetRecordByKeyInvalidKey(t *testing.T) {
	h := newHarness(t)

	got, err := h.records.GetRecordByKey(context.Background(), "not a key")
	if err != nil {
		t.Fatalf("invalid key lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("invalid key resolved to %+v", got)
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
