package store

import (
	"fmt"

	"ridemetrics/internal/analysis"
)

const dateLayout = "2006-01-02"

// ReplaceTrainingLoad replaces a user's daily training load series
func (s *Store) ReplaceTrainingLoad(userID string, points []analysis.TrainingLoadPoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM training_load WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting existing training load: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO training_load (user_id, date, tss, ctl, atl, tsb)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(userID, p.Date.UTC().Format(dateLayout), p.TSS, p.CTL, p.ATL, p.TSB); err != nil {
			return fmt.Errorf("inserting training load: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// TrainingLoad returns a user's stored daily training load, oldest first
func (s *Store) TrainingLoad(userID string) ([]analysis.TrainingLoadPoint, error) {
	rows, err := s.db.Query(`
		SELECT date, tss, ctl, atl, tsb FROM training_load
		WHERE user_id = ?
		ORDER BY date
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []analysis.TrainingLoadPoint
	for rows.Next() {
		var date string
		var p analysis.TrainingLoadPoint
		if err := rows.Scan(&date, &p.TSS, &p.CTL, &p.ATL, &p.TSB); err != nil {
			return nil, err
		}
		if p.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ReplaceVO2max replaces a user's VO2max estimates
func (s *Store) ReplaceVO2max(userID string, estimates []analysis.VO2maxEstimate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM vo2max_estimates WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting existing estimates: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO vo2max_estimates (user_id, timestamp, vo2max_abs, vo2max_rel)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range estimates {
		if _, err := stmt.Exec(userID, formatTime(e.Timestamp), e.Absolute, e.Relative); err != nil {
			return fmt.Errorf("inserting estimate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// VO2max returns a user's stored VO2max estimates, oldest first
func (s *Store) VO2max(userID string) ([]analysis.VO2maxEstimate, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, vo2max_abs, vo2max_rel FROM vo2max_estimates
		WHERE user_id = ?
		ORDER BY timestamp
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.VO2maxEstimate
	for rows.Next() {
		var ts string
		var e analysis.VO2maxEstimate
		if err := rows.Scan(&ts, &e.Absolute, &e.Relative); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
