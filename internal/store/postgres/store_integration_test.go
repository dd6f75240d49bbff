package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/DoyleJ11/kkuko-relay/internal/store"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("KKUKO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("KKUKO_TEST_DATABASE_URL not set")
	}
	return url
}

// TestStoreRoundTrip runs upsert, find and delete against a live Postgres.
func TestStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	const word = "통합테스트사과"
	t.Cleanup(func() { _ = s.Delete(context.Background(), word) })

	if err := s.Upsert(ctx, word, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, word, "과일"); err != nil {
		t.Fatalf("second upsert must update, got %v", err)
	}

	found, err := s.Find(ctx, "통합테스트")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0].Theme != "과일" {
		t.Fatalf("find = %+v, want one row with theme 과일", found)
	}

	if err := s.Delete(ctx, word); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, word); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestOpenRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected missing url error")
	}
}
