package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SessionRepo persists refresh-token sessions. A session is valid while its
// row exists, has not been revoked and has not expired; refresh rotation
// revokes the old row and inserts a new one. Access tokens are deliberately
// never checked here: revocation is enforced on the rare refresh path, not on
// every request.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Record inserts a session row for a freshly issued refresh token.
func (r *SessionRepo) Record(ctx context.Context, userID uint64, sessionID, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (user_id, session_id, token_hash, expires_at) VALUES (?,?,?,?)",
		userID, sessionID, tokenHash, exp)
	return err
}

// Validate reports whether the session identified by sessionID is live and
// bound to the presented token hash. Both the uuid and the hash must match:
// the uuid ties the JWT to the row, the hash prevents a forged uuid claim
// from riding on someone else's session.
func (r *SessionRepo) Validate(ctx context.Context, userID uint64, sessionID, tokenHash string) (bool, error) {
	var (
		storedHash string
		expiresAt  time.Time
		revokedAt  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT token_hash, expires_at, revoked_at FROM sessions WHERE user_id=? AND session_id=? LIMIT 1",
		userID, sessionID).Scan(&storedHash, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if revokedAt.Valid || storedHash != tokenHash {
		return false, nil
	}
	if time.Now().UTC().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

// Revoke marks one session as revoked (single-device logout).
func (r *SessionRepo) Revoke(ctx context.Context, userID uint64, sessionID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=NOW() WHERE user_id=? AND session_id=? AND revoked_at IS NULL",
		userID, sessionID)
	return err
}

// RevokeAll marks every live session of a user as revoked (logout-all).
// Already-issued access tokens keep working until they expire; that window is
// bounded by the access TTL and accepted by design.
func (r *SessionRepo) RevokeAll(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// DeleteExpired removes rows whose expiry passed more than the grace period
// ago. Housekeeping; correctness never depends on it.
func (r *SessionRepo) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at < ?", time.Now().UTC().Add(-grace))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
