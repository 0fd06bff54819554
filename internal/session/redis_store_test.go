package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestSaveAndLookup(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	sess := Session{UserID: "usr_1", UserName: "Ada"}
	if err := store.Save(ctx, "hash-1", sess, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.UserID != "usr_1" || got.UserName != "Ada" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestLookupExpired(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "hash-exp", Session{UserID: "usr_2"}, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := store.Lookup(ctx, "hash-exp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupUnknown(t *testing.T) {
	store, _ := setupTestRedis(t)

	if _, err := store.Lookup(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	store, _ := setupTestRedis(t)

	err := store.Save(context.Background(), "hash-past", Session{UserID: "usr_3"}, time.Now().Add(-time.Minute))
	if err == nil {
		t.Error("expected error for expiry in the past")
	}
}

func TestRevoke(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.Save(ctx, "hash-rev", Session{UserID: "usr_4"}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Revoke(ctx, "hash-rev"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "hash-rev"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking again is a no-op.
	if err := store.Revoke(ctx, "hash-rev"); err != nil {
		t.Errorf("second Revoke failed: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := store.Save(ctx, "hash-a", Session{UserID: "usr_a"}, exp); err != nil {
		t.Fatalf("Save a failed: %v", err)
	}
	if err := store.Save(ctx, "hash-b", Session{UserID: "usr_b"}, exp); err != nil {
		t.Fatalf("Save b failed: %v", err)
	}

	if err := store.Revoke(ctx, "hash-a"); err != nil {
		t.Fatalf("Revoke a failed: %v", err)
	}

	got, err := store.Lookup(ctx, "hash-b")
	if err != nil {
		t.Fatalf("Lookup b failed: %v", err)
	}
	if got.UserID != "usr_b" {
		t.Errorf("expected usr_b, got %s", got.UserID)
	}
}
