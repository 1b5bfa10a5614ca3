package oauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GrantRepository defines the interface for authorization grant persistence.
type GrantRepository interface {
	Create(ctx context.Context, grant *AuthorizationGrant) error
	Redeem(ctx context.Context, codeHash, clientID, redirectURI string) (*AuthorizationGrant, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteGrantRepository implements GrantRepository using SQLite.
type SQLiteGrantRepository struct {
	db *sql.DB
}

// NewGrantRepository creates a new SQLite-backed grant repository.
func NewGrantRepository(db *sql.DB) *SQLiteGrantRepository {
	return &SQLiteGrantRepository{db: db}
}

// Create inserts a new authorization grant. The ID is generated if empty.
func (r *SQLiteGrantRepository) Create(ctx context.Context, grant *AuthorizationGrant) error {
	if grant.ID == "" {
		grant.ID = "ag-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	grant.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth_grants (id, client_id, redirect_uri, scope, code_hash, redeemed, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		grant.ID, grant.ClientID, grant.RedirectURI, grant.Scope, grant.CodeHash,
		boolToInt(grant.Redeemed),
		grant.ExpiresAt.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return fmt.Errorf("creating grant: %w", err)
	}

	return nil
}

// Redeem atomically consumes an authorization code.
//
// The grant must exist, be unredeemed, be unexpired, and be bound to the
// presented client and redirect target; any mismatch fails with
// ErrInvalidGrant. The single-use invariant lives in the final UPDATE:
// its WHERE clause re-checks redeemed = 0 inside the transaction, so two
// concurrent redemptions of the same code cannot both succeed.
func (r *SQLiteGrantRepository) Redeem(ctx context.Context, codeHash, clientID, redirectURI string) (*AuthorizationGrant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning redemption transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var g AuthorizationGrant
	var redeemed int
	var expiresAt, createdAt string

	err = tx.QueryRowContext(ctx,
		`SELECT id, client_id, redirect_uri, scope, code_hash, redeemed, expires_at, created_at
		 FROM oauth_grants WHERE code_hash = ?`, codeHash,
	).Scan(&g.ID, &g.ClientID, &g.RedirectURI, &g.Scope, &g.CodeHash,
		&redeemed, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("getting grant: %w", err)
	}

	g.Redeemed = redeemed != 0
	g.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if g.Redeemed {
		return nil, fmt.Errorf("%w: code already redeemed", ErrInvalidGrant)
	}
	if time.Now().After(g.ExpiresAt) {
		return nil, fmt.Errorf("%w: code expired", ErrInvalidGrant)
	}
	if g.ClientID != clientID {
		return nil, fmt.Errorf("%w: client mismatch", ErrInvalidGrant)
	}
	if g.RedirectURI != redirectURI {
		return nil, fmt.Errorf("%w: redirect mismatch", ErrInvalidGrant)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE oauth_grants SET redeemed = 1 WHERE id = ? AND redeemed = 0", g.ID)
	if err != nil {
		return nil, fmt.Errorf("redeeming grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking redemption: %w", err)
	}
	if affected != 1 {
		return nil, fmt.Errorf("%w: code already redeemed", ErrInvalidGrant)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing redemption: %w", err)
	}

	g.Redeemed = true
	return &g, nil
}

// DeleteExpired removes grants past their expiry. Returns the number deleted.
// Intended for periodic housekeeping; redemption already rejects expired codes.
func (r *SQLiteGrantRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM oauth_grants WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired grants: %w", err)
	}

	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
