package event

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/apolmig/smartqr-backend/internal/data/repos/testutil"
	"github.com/apolmig/smartqr-backend/internal/domain"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
)

func TestScanEventRepo(t *testing.T) {
	svc := testutil.Service(t)
	tx := testutil.Tx(t, svc.Write())

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewScanEventRepo(svc, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "eventrepo@example.com")
	rec := testutil.SeedRecord(t, ctx, tx, u.ID, "evntrepo")

	ev := &domain.ScanEvent{
		ID:             uuid.New(),
		RecordID:       rec.ID,
		UserAgent:      "Mozilla/5.0",
		Device:         "mobile",
		OS:             "android",
		Browser:        "chrome",
		AdditionalData: datatypes.JSON([]byte(`{"ref":"campaign-1"}`)),
	}
	if _, err := repo.Create(dbc, ev); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(dbc, &domain.ScanEvent{ID: uuid.New(), RecordID: rec.ID}); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	count, err := repo.CountByRecord(dbc, rec.ID)
	if err != nil || count != 2 {
		t.Fatalf("CountByRecord: count=%d err=%v", count, err)
	}

	rows, err := repo.ListByRecord(dbc, rec.ID, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByRecord limit: len=%d err=%v", len(rows), err)
	}

	if err := repo.DeleteByRecord(dbc, rec.ID); err != nil {
		t.Fatalf("DeleteByRecord: %v", err)
	}
	count, err = repo.CountByRecord(dbc, rec.ID)
	if err != nil || count != 0 {
		t.Fatalf("after DeleteByRecord: count=%d err=%v", count, err)
	}
}
