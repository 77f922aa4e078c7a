package store

import (
	"database/sql"
	"errors"
	"time"
)

// GetAuth retrieves the stored Strava tokens of a user
func (s *Store) GetAuth(userID string) (*Auth, error) {
	row := s.db.QueryRow(`
		SELECT athlete_id, access_token, refresh_token, expires_at
		FROM strava_auth
		WHERE user_id = ?
	`, userID)

	var auth Auth
	var expiresAt int64
	err := row.Scan(&auth.AthleteID, &auth.AccessToken, &auth.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAuth
	}
	if err != nil {
		return nil, err
	}

	auth.ExpiresAt = time.Unix(expiresAt, 0)
	return &auth, nil
}

// SaveAuth stores or updates the Strava tokens of a user
func (s *Store) SaveAuth(userID string, auth *Auth) error {
	_, err := s.db.Exec(`
		INSERT INTO strava_auth (user_id, athlete_id, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, userID, auth.AthleteID, auth.AccessToken, auth.RefreshToken, auth.ExpiresAt.Unix())
	return err
}

// UpdateTokens updates just the access and refresh tokens of a user
func (s *Store) UpdateTokens(userID, accessToken, refreshToken string, expiresAt time.Time) error {
	result, err := s.db.Exec(`
		UPDATE strava_auth
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, accessToken, refreshToken, expiresAt.Unix(), userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNoAuth
	}
	return nil
}

// DeleteAuth removes the stored Strava tokens of a user
func (s *Store) DeleteAuth(userID string) error {
	_, err := s.db.Exec(`DELETE FROM strava_auth WHERE user_id = ?`, userID)
	return err
}

// StravaImported reports whether a Strava activity was already imported for a user
func (s *Store) StravaImported(userID string, stravaID int64) (bool, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT 1 FROM strava_imports WHERE user_id = ? AND strava_id = ?
	`, userID, stravaID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkStravaImported records a Strava activity as imported for a user
func (s *Store) MarkStravaImported(userID string, stravaID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO strava_imports (user_id, strava_id) VALUES (?, ?)
		ON CONFLICT(user_id, strava_id) DO NOTHING
	`, userID, stravaID)
	return err
}
