package record

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/apolmig/smartqr-backend/internal/data/repos/testutil"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
)

func TestRecordRepo(t *testing.T) {
	svc := testutil.Service(t)
	tx := testutil.Tx(t, svc.Write())

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewRecordRepo(svc, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "recordrepo@example.com")
	rec := testutil.SeedRecord(t, ctx, tx, u.ID, "rcrdrepo")

	got, err := repo.GetByShortKey(dbc, "rcrdrepo")
	if err != nil || got == nil || got.ID != rec.ID {
		t.Fatalf("GetByShortKey: got=%v err=%v", got, err)
	}
	got, err = repo.GetByShortKey(dbc, "missing2")
	if err != nil || got != nil {
		t.Fatalf("GetByShortKey absent: got=%v err=%v; absent must be (nil, nil)", got, err)
	}

	exists, err := repo.ShortKeyExists(dbc, "rcrdrepo")
	if err != nil || !exists {
		t.Fatalf("ShortKeyExists: exists=%v err=%v", exists, err)
	}

	rows, err := repo.ListByUser(dbc, u.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByUser: len=%d err=%v", len(rows), err)
	}
	rows, err = repo.ListByUserViaRelation(dbc, u.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByUserViaRelation: len=%d err=%v", len(rows), err)
	}

	count, err := repo.CountByUser(dbc, u.ID)
	if err != nil || count != 1 {
		t.Fatalf("CountByUser: count=%d err=%v", count, err)
	}

	if err := repo.Update(dbc, rec.ID, map[string]any{"target": "https://example.org", "is_active": false}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = repo.GetByShortKey(dbc, "rcrdrepo")
	if err != nil || got == nil || got.Target != "https://example.org" || got.IsActive {
		t.Fatalf("after Update: got=%+v err=%v", got, err)
	}

	if err := repo.Update(dbc, uuid.New(), map[string]any{"target": "x"}); err == nil {
		t.Fatal("Update on missing row must error")
	}

	now := time.Now().UTC()
	if err := repo.IncrementScanStats(dbc, rec.ID, now); err != nil {
		t.Fatalf("IncrementScanStats: %v", err)
	}
	if err := repo.IncrementScanStats(dbc, rec.ID, now.Add(time.Second)); err != nil {
		t.Fatalf("IncrementScanStats again: %v", err)
	}
	got, err = repo.GetByShortKey(dbc, "rcrdrepo")
	if err != nil || got == nil || got.ScanCount != 2 {
		t.Fatalf("scan count after two increments = %d, want 2 (err=%v)", got.ScanCount, err)
	}
	if got.LastActivityAt == nil {
		t.Fatal("last activity not set by increment")
	}

	if err := repo.DeleteByID(dbc, rec.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	got, err = repo.GetByShortKey(dbc, "rcrdrepo")
	if err != nil || got != nil {
		t.Fatalf("after delete: got=%v err=%v", got, err)
	}
}

func TestVariantRepo(t *testing.T) {
	svc := testutil.Service(t)
	tx := testutil.Tx(t, svc.Write())

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewVariantRepo(svc, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "variantrepo@example.com")
	rec := testutil.SeedRecord(t, ctx, tx, u.ID, "varntrep")

	testutil.SeedVariant(t, ctx, tx, rec.ID, "https://a.example.com")
	inactive := testutil.SeedVariant(t, ctx, tx, rec.ID, "https://b.example.com")
	if err := tx.WithContext(ctx).Model(inactive).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate variant: %v", err)
	}

	rows, err := repo.ListActiveByRecord(dbc, rec.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListActiveByRecord: len=%d err=%v", len(rows), err)
	}
	if rows[0].Target != "https://a.example.com" {
		t.Fatalf("active variant target = %q", rows[0].Target)
	}

	if err := repo.DeleteByRecord(dbc, rec.ID); err != nil {
		t.Fatalf("DeleteByRecord: %v", err)
	}
	rows, err = repo.ListActiveByRecord(dbc, rec.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("after DeleteByRecord: len=%d err=%v", len(rows), err)
	}
}

func TestRecordRepoRawFallback(t *testing.T) {
	svc := testutil.Service(t)

	// The raw pool cannot see an open transaction, so this test commits and
	// cleans up after itself.
	ctx := context.Background()
	repo := NewRecordRepo(svc, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, svc.Write(), "rawfallback@example.com")
	rec := testutil.SeedRecord(t, ctx, svc.Write(), u.ID, "rawfback")
	t.Cleanup(func() {
		_ = svc.Write().WithContext(ctx).Exec(`DELETE FROM records WHERE id = ?`, rec.ID).Error
		_ = svc.Write().WithContext(ctx).Exec(`DELETE FROM users WHERE id = ?`, u.ID).Error
	})

	got, err := repo.GetByShortKeyRaw(ctx, "rawfback")
	if err != nil {
		t.Fatalf("GetByShortKeyRaw: %v", err)
	}
	if got == nil || got.ID != rec.ID || got.Target != rec.Target {
		t.Fatalf("GetByShortKeyRaw: got=%+v", got)
	}

	got, err = repo.GetByShortKeyRaw(ctx, "absent23")
	if err != nil || got != nil {
		t.Fatalf("GetByShortKeyRaw absent: got=%v err=%v", got, err)
	}
}
