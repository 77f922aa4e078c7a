package store

import (
	"database/sql"
	"errors"
)

// Sync state keys
const (
	SyncKeyLastStravaSync = "last_strava_sync"
)

// GetSyncState retrieves a sync state value of a user by key.
// Returns empty string if key doesn't exist
func (s *Store) GetSyncState(userID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`
		SELECT value FROM sync_state WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetSyncState sets a sync state value of a user
func (s *Store) SetSyncState(userID, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (user_id, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, userID, key, value)
	return err
}
