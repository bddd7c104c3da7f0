// Copyright 2024-2026 Aiku AI

package gateway

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// newTestAuthStore builds an auth store over a throwaway sqlite database.
func newTestAuthStore(t *testing.T) *AuthStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenAuthStore(
		filepath.Join(dir, "remote.db"),
		filepath.Join(dir, "session", "wameow.db"),
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("OpenAuthStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestAuthStore_LoadAbsent verifies a cold boot with an empty remote store
// reports absence and still prepares the local directory.
func TestAuthStore_LoadAbsent(t *testing.T) {
	t.Parallel()
	store := newTestAuthStore(t)

	if store.Load(context.Background()) {
		t.Error("Load must report absent on an empty remote store")
	}
	if _, err := os.Stat(filepath.Dir(store.LocalPath())); err != nil {
		t.Errorf("session directory not created: %v", err)
	}
}

// TestAuthStore_PersistThenLoad verifies the remote copy is authoritative on
// boot: Load materializes it over a divergent local file.
func TestAuthStore_PersistThenLoad(t *testing.T) {
	t.Parallel()
	store := newTestAuthStore(t)
	ctx := context.Background()

	if err := store.Persist(ctx, []byte("remote-creds")); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if err := store.SaveLocal([]byte("stale-local")); err != nil {
		t.Fatalf("SaveLocal failed: %v", err)
	}

	if !store.Load(ctx) {
		t.Fatal("Load must report restored")
	}
	local, err := os.ReadFile(store.LocalPath())
	if err != nil {
		t.Fatalf("read local: %v", err)
	}
	if !bytes.Equal(local, []byte("remote-creds")) {
		t.Errorf("local content: got %q, want %q", local, "remote-creds")
	}
}

// TestAuthStore_PersistLastWriteWins verifies repeated upserts under the
// fixed session key keep exactly the latest blob.
func TestAuthStore_PersistLastWriteWins(t *testing.T) {
	t.Parallel()
	store := newTestAuthStore(t)
	ctx := context.Background()

	for _, blob := range []string{"v1", "v2", "v3"} {
		if err := store.Persist(ctx, []byte(blob)); err != nil {
			t.Fatalf("Persist(%q) failed: %v", blob, err)
		}
	}

	if !store.Load(ctx) {
		t.Fatal("Load must report restored")
	}
	local, _ := os.ReadFile(store.LocalPath())
	if string(local) != "v3" {
		t.Errorf("restored blob: got %q, want %q", local, "v3")
	}
}

// TestAuthStore_SaveLocalSkipsUnchanged verifies the equal-content guard:
// rewriting identical bytes must not touch the file.
func TestAuthStore_SaveLocalSkipsUnchanged(t *testing.T) {
	t.Parallel()
	store := newTestAuthStore(t)

	if err := store.SaveLocal([]byte("creds")); err != nil {
		t.Fatalf("SaveLocal failed: %v", err)
	}
	before, err := os.Stat(store.LocalPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := store.SaveLocal([]byte("creds")); err != nil {
		t.Fatalf("second SaveLocal failed: %v", err)
	}
	after, _ := os.Stat(store.LocalPath())
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("unchanged content must not be rewritten")
	}
}

// TestAuthStore_Reset verifies the explicit session reset removes both
// copies.
func TestAuthStore_Reset(t *testing.T) {
	t.Parallel()
	store := newTestAuthStore(t)
	ctx := context.Background()

	if err := store.Persist(ctx, []byte("creds")); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if err := store.SaveLocal([]byte("creds")); err != nil {
		t.Fatalf("SaveLocal failed: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := os.Stat(store.LocalPath()); !os.IsNotExist(err) {
		t.Error("local file must be removed by Reset")
	}
	if store.Load(ctx) {
		t.Error("remote copy must be gone after Reset")
	}
}

// TestAuthStore_ResetWithoutState verifies Reset is safe when nothing was
// ever stored.
func TestAuthStore_ResetWithoutState(t *testing.T) {
	t.Parallel()
	store := newTestAuthStore(t)
	if err := store.Reset(context.Background()); err != nil {
		t.Fatalf("Reset on empty store failed: %v", err)
	}
}
