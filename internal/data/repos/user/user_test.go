package user

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/apolmig/smartqr-backend/internal/data/repos/testutil"
	"github.com/apolmig/smartqr-backend/internal/pkg/dbctx"
)

func TestUserRepo(t *testing.T) {
	svc := testutil.Service(t)
	tx := testutil.Tx(t, svc.Write())

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewUserRepo(svc, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "userrepo@example.com")

	got, err := repo.GetByID(dbc, u.ID)
	if err != nil || got == nil || got.ID != u.ID {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}

	got, err = repo.GetByEmail(dbc, "userrepo@example.com")
	if err != nil || got == nil || got.Email != u.Email {
		t.Fatalf("GetByEmail: got=%v err=%v", got, err)
	}

	got, err = repo.GetByEmail(dbc, "missing@example.com")
	if err != nil || got != nil {
		t.Fatalf("GetByEmail absent: got=%v err=%v; absent rows must be (nil, nil)", got, err)
	}

	exists, err := repo.EmailExists(dbc, "userrepo@example.com")
	if err != nil || !exists {
		t.Fatalf("EmailExists: exists=%v err=%v", exists, err)
	}

	locked, err := repo.LockForUpdate(dbc, u.ID)
	if err != nil || locked == nil || locked.ID != u.ID {
		t.Fatalf("LockForUpdate: got=%v err=%v", locked, err)
	}

	if _, err := repo.LockForUpdate(dbc, uuid.New()); err != nil {
		t.Fatalf("LockForUpdate absent: err=%v, want nil", err)
	}
}
