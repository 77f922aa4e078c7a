package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Artifact names
const (
	ArtifactPowerCurve      = "power_curve"
	ArtifactPowerCurveLast  = "power_curve_last"
	ArtifactCPModel         = "cp_model"
	ArtifactCPHistory       = "cp_history"
	ArtifactEfficiency      = "efficiency"
	ArtifactZones           = "zones"
	ArtifactPowerBests      = "power_bests"
	ArtifactPowerTimeSeries = "power_time_series"
)

// SaveArtifact stores v as the JSON payload of a named artifact, replacing
// any previous version.
func (s *Store) SaveArtifact(userID, name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding artifact %s: %w", name, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO artifacts (user_id, name, payload, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			payload = excluded.payload,
			computed_at = excluded.computed_at
	`, userID, name, string(payload), formatTime(time.Now()))
	return err
}

// GetArtifact decodes a named artifact into dst and returns its computation time
func (s *Store) GetArtifact(userID, name string, dst any) (time.Time, error) {
	var payload, computedAt string
	err := s.db.QueryRow(`
		SELECT payload, computed_at FROM artifacts WHERE user_id = ? AND name = ?
	`, userID, name).Scan(&payload, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrArtifactNotFound
	}
	if err != nil {
		return time.Time{}, err
	}

	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return time.Time{}, fmt.Errorf("decoding artifact %s: %w", name, err)
	}
	ts, _ := parseTime(computedAt)
	return ts, nil
}

// DeleteArtifact removes a named artifact. Removing a missing artifact is not an error.
func (s *Store) DeleteArtifact(userID, name string) error {
	_, err := s.db.Exec(`DELETE FROM artifacts WHERE user_id = ? AND name = ?`, userID, name)
	return err
}
