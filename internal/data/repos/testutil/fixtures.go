package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/apolmig/smartqr-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *domain.User {
	tb.Helper()
	u := &domain.User{
		ID:    uuid.New(),
		Email: email,
		Name:  "Test User",
		Plan:  domain.PlanBase,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, shortKey string) *domain.Record {
	tb.Helper()
	r := &domain.Record{
		ID:           uuid.New(),
		ShortKey:     shortKey,
		UserID:       userID,
		Name:         "Home",
		Target:       "https://example.com",
		IsActive:     true,
		StyleOptions: datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed record: %v", err)
	}
	return r
}

func SeedVariant(tb testing.TB, ctx context.Context, tx *gorm.DB, recordID uuid.UUID, target string) *domain.Variant {
	tb.Helper()
	v := &domain.Variant{
		ID:         uuid.New(),
		RecordID:   recordID,
		Target:     target,
		Weight:     1,
		Conditions: datatypes.JSON([]byte(`{}`)),
		IsActive:   true,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed variant: %v", err)
	}
	return v
}

func SeedScanEvent(tb testing.TB, ctx context.Context, tx *gorm.DB, recordID uuid.UUID) *domain.ScanEvent {
	tb.Helper()
	ev := &domain.ScanEvent{
		ID:             uuid.New(),
		RecordID:       recordID,
		UserAgent:      "test-agent",
		Device:         "desktop",
		AdditionalData: datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		tb.Fatalf("seed scan event: %v", err)
	}
	return ev
}
