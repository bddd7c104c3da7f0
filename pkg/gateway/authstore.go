// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gateway

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// sessionKey is the fixed logical identity of the single session this
// gateway owns in the remote store.
const sessionKey = "session"

// authSchema creates the remote key→blob table. Applied once per process
// lifetime before the first read or write.
const authSchema = `
CREATE TABLE IF NOT EXISTS wa_sessions (
	id TEXT PRIMARY KEY,
	blob BYTEA NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// AuthStore reconciles the session credential blob between the local durable
// file used by the protocol engine and a remote key→blob table. The remote
// copy is authoritative on cold boot; every mutation writes local first, then
// remote, so a crash between the two leaves local ahead by at most one
// rotation.
type AuthStore struct {
	db        *sql.DB
	dialect   string
	localPath string
	log       zerolog.Logger

	schemaOnce sync.Once
	schemaErr  error
}

var _ credentialStore = (*AuthStore)(nil)

// OpenAuthStore connects to the remote store named by uri and anchors the
// local representation at localPath. URIs starting with postgres:// (or
// postgresql://) use the postgres driver; anything else is treated as a
// sqlite database path.
func OpenAuthStore(uri, localPath string, log zerolog.Logger) (*AuthStore, error) {
	dialect := "sqlite3"
	if strings.HasPrefix(uri, "postgres://") || strings.HasPrefix(uri, "postgresql://") {
		dialect = "postgres"
	}
	db, err := sql.Open(dialect, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}
	return &AuthStore{
		db:        db,
		dialect:   dialect,
		localPath: localPath,
		log:       log.With().Str("component", "authstore").Logger(),
	}, nil
}

// LocalPath returns the path of the local durable credential representation.
func (a *AuthStore) LocalPath() string {
	return a.localPath
}

// Close releases the remote store connection.
func (a *AuthStore) Close() error {
	return a.db.Close()
}

// ensureSchema applies the create-if-not-exists step exactly once.
func (a *AuthStore) ensureSchema(ctx context.Context) error {
	a.schemaOnce.Do(func() {
		schema := authSchema
		if a.dialect == "sqlite3" {
			schema = strings.Replace(schema, "BYTEA", "BLOB", 1)
		}
		_, a.schemaErr = a.db.ExecContext(ctx, schema)
	})
	return a.schemaErr
}

// rebind rewrites ? placeholders into the $n form the postgres driver wants.
func (a *AuthStore) rebind(query string) string {
	if a.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Load reads the remote blob and, if present, materializes it into the local
// representation, overwriting any local copy. If the remote store has
// nothing (or is unreachable), the local path's directory is created so the
// engine can bootstrap a fresh pairing. Load never fails the boot sequence:
// it returns whether a blob was restored.
func (a *AuthStore) Load(ctx context.Context) bool {
	if err := os.MkdirAll(filepath.Dir(a.localPath), 0o700); err != nil {
		a.log.Error().Err(err).Msg("Failed to create session directory")
		return false
	}

	if err := a.ensureSchema(ctx); err != nil {
		a.log.Error().Err(err).Msg("Remote store schema check failed, treating session as absent")
		return false
	}

	var blob []byte
	err := a.db.QueryRowContext(ctx,
		a.rebind(`SELECT blob FROM wa_sessions WHERE id = ?`), sessionKey,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		a.log.Info().Msg("No session in remote store, starting fresh")
		return false
	}
	if err != nil {
		a.log.Error().Err(err).Msg("Remote store read failed, treating session as absent")
		return false
	}

	if err := a.SaveLocal(blob); err != nil {
		a.log.Error().Err(err).Msg("Failed to materialize session locally, starting fresh")
		return false
	}
	a.log.Info().Int("bytes", len(blob)).Msg("Session restored from remote store")
	return true
}

// SaveLocal writes the blob to the local durable representation. The engine
// writes through the same file itself, so when the on-disk content already
// matches the write is skipped rather than clobbering a file the engine may
// hold open.
func (a *AuthStore) SaveLocal(blob []byte) error {
	if current, err := os.ReadFile(a.localPath); err == nil && bytes.Equal(current, blob) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.localPath), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	tmp := a.localPath + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, a.localPath); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Persist upserts the blob into the remote store under the fixed session
// key, last write wins. Called synchronously with every credential mutation
// so that a crash loses at most zero completed writes.
func (a *AuthStore) Persist(ctx context.Context, blob []byte) error {
	if err := a.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	_, err := a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO wa_sessions (id, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
	`), sessionKey, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Reset removes both copies of the credential blob. Only an explicit session
// reset (logout) deletes credentials.
func (a *AuthStore) Reset(ctx context.Context) error {
	if err := os.Remove(a.localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove local session: %w", err)
	}
	if err := a.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if _, err := a.db.ExecContext(ctx,
		a.rebind(`DELETE FROM wa_sessions WHERE id = ?`), sessionKey); err != nil {
		return fmt.Errorf("remove remote session: %w", err)
	}
	return nil
}
