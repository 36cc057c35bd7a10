package adminauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisProfileStoreMissingUser(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisProfileStore(client)

	if _, err := store.Get(context.Background(), "nobody"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestRedisProfileStoreRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisProfileStore(client)
	ctx := context.Background()

	lockedUntil := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	lastLogin := time.Date(2025, 5, 28, 14, 0, 0, 0, time.UTC)
	seeded := &AdminProfile{
		UserID:              "usr-rt",
		FailedLoginAttempts: 3,
		LockedUntil:         &lockedUntil,
		TOTPEnabled:         true,
		TOTPSecret:          testTOTPSecret,
		BackupCodes:         []string{"AAAABBBBCC", "DDDDEEEEFF"},
		LastLogin:           &lastLogin,
	}
	if err := store.Seed(ctx, seeded); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	got, err := store.Get(ctx, "usr-rt")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.FailedLoginAttempts != 3 {
		t.Fatalf("attempts = %d, want 3", got.FailedLoginAttempts)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(lockedUntil) {
		t.Fatalf("locked_until = %v, want %v", got.LockedUntil, lockedUntil)
	}
	if !got.TOTPEnabled || got.TOTPSecret != testTOTPSecret {
		t.Fatal("TOTP fields did not round trip")
	}
	if len(got.BackupCodes) != 2 || got.BackupCodes[0] != "AAAABBBBCC" {
		t.Fatalf("backup codes did not round trip: %v", got.BackupCodes)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(lastLogin) {
		t.Fatalf("last_login = %v, want %v", got.LastLogin, lastLogin)
	}
}

func TestRedisProfileStorePartialUpdate(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisProfileStore(client)
	ctx := context.Background()

	if err := store.Seed(ctx, &AdminProfile{
		UserID:      "usr-pu",
		TOTPEnabled: true,
		TOTPSecret:  testTOTPSecret,
		BackupCodes: []string{"AAAABBBBCC"},
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	attempts := 4
	if err := store.Update(ctx, "usr-pu", ProfileUpdate{FailedLoginAttempts: &attempts}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := store.Get(ctx, "usr-pu")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.FailedLoginAttempts != 4 {
		t.Fatalf("attempts = %d, want 4", got.FailedLoginAttempts)
	}
	// Untouched fields survive a partial write.
	if !got.TOTPEnabled || got.TOTPSecret != testTOTPSecret || len(got.BackupCodes) != 1 {
		t.Fatal("partial update clobbered unrelated fields")
	}
}

func TestRedisProfileStoreClearsLock(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisProfileStore(client)
	ctx := context.Background()

	until := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	if err := store.Seed(ctx, &AdminProfile{UserID: "usr-cl", LockedUntil: &until}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := store.Update(ctx, "usr-cl", ProfileUpdate{SetLockedUntil: true}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := store.Get(ctx, "usr-cl")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.LockedUntil != nil {
		t.Fatalf("expected lock cleared, got %v", got.LockedUntil)
	}
}

func TestRedisProfileStoreEmptyUpdateIsNoop(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisProfileStore(client)

	if err := store.Update(context.Background(), "usr-nop", ProfileUpdate{}); err != nil {
		t.Fatalf("empty update failed: %v", err)
	}
	if _, err := store.Get(context.Background(), "usr-nop"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatal("an empty update must not create a hash")
	}
}

func TestRedisRoleStoreGrantAndRevoke(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisRoleStore(client)
	ctx := context.Background()

	has, err := store.HasRole(ctx, "usr-r", RoleAdmin)
	if err != nil {
		t.Fatalf("HasRole failed: %v", err)
	}
	if has {
		t.Fatal("unexpected role before grant")
	}

	if err := store.Grant(ctx, "usr-r", RoleAdmin); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if has, _ = store.HasRole(ctx, "usr-r", RoleAdmin); !has {
		t.Fatal("expected role after grant")
	}

	if err := store.Revoke(ctx, "usr-r", RoleAdmin); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if has, _ = store.HasRole(ctx, "usr-r", RoleAdmin); has {
		t.Fatal("expected role gone after revoke")
	}
}
