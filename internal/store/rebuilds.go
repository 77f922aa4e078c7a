package store

import (
	"fmt"
	"time"
)

// FileSnapshots returns the sample files recorded by the last successful
// rebuild of a user, keyed by file name.
func (s *Store) FileSnapshots(userID string) (map[string]FileSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT file_name, file_size, file_hash FROM file_snapshots WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]FileSnapshot)
	for rows.Next() {
		var f FileSnapshot
		if err := rows.Scan(&f.FileName, &f.FileSize, &f.FileHash); err != nil {
			return nil, err
		}
		out[f.FileName] = f
	}
	return out, rows.Err()
}

// ReplaceFileSnapshots replaces the recorded sample files of a user
func (s *Store) ReplaceFileSnapshots(userID string, files []FileSnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM file_snapshots WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting existing snapshots: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO file_snapshots (user_id, file_name, file_size, file_hash)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.Exec(userID, f.FileName, f.FileSize, f.FileHash); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RecordRun stores the outcome of one module of a rebuild run
func (s *Store) RecordRun(r RebuildRun) error {
	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}
	_, err := s.db.Exec(`
		INSERT INTO rebuild_runs (run_id, user_id, module, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.UserID, r.Module, r.Status, errText, formatTime(r.StartedAt), formatTime(r.FinishedAt))
	return err
}

// RunsForUser returns the recorded module runs of a user, newest first
func (s *Store) RunsForUser(userID string, limit int) ([]RebuildRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT run_id, user_id, module, status, error, started_at, finished_at
		FROM rebuild_runs
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RebuildRun
	for rows.Next() {
		var r RebuildRun
		var errText *string
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.UserID, &r.Module, &r.Status, &errText, &started, &finished); err != nil {
			return nil, err
		}
		if errText != nil {
			r.Error = *errText
		}
		r.StartedAt, _ = parseTime(started)
		r.FinishedAt, _ = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
