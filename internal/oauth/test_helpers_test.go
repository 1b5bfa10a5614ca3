package oauth

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
)

const testSecret = "test-signing-secret-0123456789abcdef"

// testDB creates a temporary SQLite database with the oauth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "oauth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Single connection serialises concurrent transactions instead of
	// surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE oauth_grants (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			code_hash TEXT NOT NULL,
			redeemed INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE UNIQUE INDEX idx_oauth_grants_code_hash ON oauth_grants(code_hash);

		CREATE TABLE oauth_refresh_tokens (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			token_hash TEXT NOT NULL,
			access_jti TEXT NOT NULL DEFAULT '',
			expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE UNIQUE INDEX idx_oauth_refresh_tokens_hash ON oauth_refresh_tokens(token_hash);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating oauth tables: %v", err)
	}

	return db
}

// testAuthority builds an Authority backed by a temp database with one
// registered client.
func testAuthority(t *testing.T) *Authority {
	t.Helper()
	db := testDB(t)

	cfg := config.OAuthConfig{
		Clients: []config.OAuthClientConfig{
			{
				ID:           "assistant-platform",
				Secret:       "platform-client-secret",
				RedirectURIs: []string{"https://oauth-redirect.example.com/r/project"},
			},
		},
		Secret:          testSecret,
		GrantTTL:        10,
		AccessTokenTTL:  60,
		RefreshTokenTTL: 43200,
	}

	return NewAuthority(cfg, NewGrantRepository(db), NewTokenRepository(db))
}
