package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"fee-tracker/internal/config"
	"fee-tracker/internal/fees"
)

func TestNilStoreReportsNotConfigured(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if err := s.InsertSnapshot(ctx, fees.Snapshot{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("InsertSnapshot: expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.ListRecentSnapshots(ctx, 5); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListRecentSnapshots: expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.ListSnapshotsBetween(ctx, time.Now(), time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListSnapshotsBetween: expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.CountSnapshots(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("CountSnapshots: expected ErrNotConfigured, got %v", err)
	}
	if err := s.EnsureSchema(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("EnsureSchema: expected ErrNotConfigured, got %v", err)
	}
	s.Close()
}

func TestNewPoolValidatesDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); err == nil {
		t.Fatal("empty dsn should be rejected")
	}
	if _, err := NewPool(context.Background(), config.DatabaseConfig{DSN: "://bad"}); err == nil {
		t.Fatal("malformed dsn should be rejected")
	}
}
