package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ridemetrics/internal/analysis"
)

const activityColumns = `id, user_id, file_name, file_hash, file_size, start_time,
	duration, distance_km, avg_power, avg_heart_rate, normalized_power, tss,
	intensity_factor, efficiency_factor,
	max_5sec_power, max_1min_power, max_3min_power, max_5min_power,
	max_10min_power, max_20min_power, max_30min_power,
	critical_power, source, created_at`

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanActivity(row scanner) (*Activity, error) {
	var a Activity
	var startTime string
	var createdAt *string
	b := &a.BestPowers

	err := row.Scan(
		&a.ID, &a.UserID, &a.FileName, &a.FileHash, &a.FileSize, &startTime,
		&a.DurationS, &a.DistanceKm, &a.AvgPower, &a.AvgHeartRate, &a.NormalizedPower, &a.TSS,
		&a.IntensityFactor, &a.EfficiencyFactor,
		&b.Sec5, &b.Min1, &b.Min3, &b.Min5,
		&b.Min10, &b.Min20, &b.Min30,
		&a.CriticalPower, &a.Source, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.StartTime, err = parseTime(startTime)
	if err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	if createdAt != nil {
		// CURRENT_TIMESTAMP format; ignore parse errors on legacy rows
		a.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", *createdAt)
	}
	return &a, nil
}

func scanActivities(rows *sql.Rows) ([]Activity, error) {
	var activities []Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// InsertActivityWithZones stores an activity and its zone rows in one
// transaction. Zones with zero seconds are not stored.
func (s *Store) InsertActivityWithZones(a *Activity, powerZones, hrZones analysis.ZoneDistribution) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	source := a.Source
	if source == "" {
		source = SourceFile
	}
	b := a.BestPowers

	result, err := tx.Exec(`
		INSERT INTO activities (
			user_id, file_name, file_hash, file_size, start_time,
			duration, distance_km, avg_power, avg_heart_rate, normalized_power, tss,
			intensity_factor, efficiency_factor,
			max_5sec_power, max_1min_power, max_3min_power, max_5min_power,
			max_10min_power, max_20min_power, max_30min_power,
			critical_power, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.UserID, a.FileName, a.FileHash, a.FileSize, formatTime(a.StartTime),
		a.DurationS, a.DistanceKm, a.AvgPower, a.AvgHeartRate, a.NormalizedPower, a.TSS,
		a.IntensityFactor, a.EfficiencyFactor,
		b.Sec5, b.Min1, b.Min3, b.Min5,
		b.Min10, b.Min20, b.Min30,
		a.CriticalPower, source,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting activity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertZones(tx, "power_zones", id, a.UserID, powerZones); err != nil {
		return 0, err
	}
	if err := insertZones(tx, "hr_zones", id, a.UserID, hrZones); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	a.ID = id
	a.Source = source
	return id, nil
}

func insertZones(tx *sql.Tx, table string, activityID int64, userID string, zones analysis.ZoneDistribution) error {
	if len(zones) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`INSERT INTO ` + table + ` (activity_id, user_id, zone_label, seconds_in_zone) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, z := range zones {
		if z.Seconds <= 0 {
			continue
		}
		if _, err := stmt.Exec(activityID, userID, z.Label, z.Seconds); err != nil {
			return fmt.Errorf("inserting %s row: %w", table, err)
		}
	}
	return nil
}

// ActivityZoneSet holds the zone seconds of one activity
type ActivityZoneSet struct {
	ActivityID int64
	Power      analysis.ZoneDistribution
	HR         analysis.ZoneDistribution
}

// ReplaceActivityZones rewrites the power and heart rate zone rows of the
// given activities of a user in one transaction. Activities not listed keep
// their rows.
func (s *Store) ReplaceActivityZones(userID string, sets []ActivityZoneSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, set := range sets {
		for _, table := range []string{"power_zones", "hr_zones"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE activity_id = ? AND user_id = ?`, set.ActivityID, userID); err != nil {
				return fmt.Errorf("clearing %s of activity %d: %w", table, set.ActivityID, err)
			}
		}
		if err := insertZones(tx, "power_zones", set.ActivityID, userID, set.Power); err != nil {
			return err
		}
		if err := insertZones(tx, "hr_zones", set.ActivityID, userID, set.HR); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ActivityExists reports whether the user already has an activity with this file hash
func (s *Store) ActivityExists(userID, fileHash string) (bool, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT 1 FROM activities WHERE user_id = ? AND file_hash = ? LIMIT 1
	`, userID, fileHash).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetActivity retrieves an activity by ID
func (s *Store) GetActivity(id int64) (*Activity, error) {
	row := s.db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	return a, err
}

// ListActivities returns a user's activities, newest first. A limit <= 0
// returns all of them.
func (s *Store) ListActivities(userID string, limit int) ([]Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id = ? ORDER BY start_time DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// CountActivities returns the number of activities stored for a user
func (s *Store) CountActivities(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM activities WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// ListUsers returns every user with an activity or stored Strava tokens
func (s *Store) ListUsers() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT user_id FROM activities WHERE TRIM(user_id) != ''
		UNION
		SELECT user_id FROM strava_auth
		ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ActivityLoads returns (start_time, tss) for every activity of a user
func (s *Store) ActivityLoads(userID string) ([]analysis.ActivityLoad, error) {
	rows, err := s.db.Query(`
		SELECT start_time, tss FROM activities
		WHERE user_id = ?
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []analysis.ActivityLoad
	for rows.Next() {
		var startTime string
		var l analysis.ActivityLoad
		if err := rows.Scan(&startTime, &l.TSS); err != nil {
			return nil, err
		}
		if l.StartTime, err = parseTime(startTime); err != nil {
			return nil, fmt.Errorf("parsing start_time: %w", err)
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

// VO2Inputs returns the estimator inputs of activities with NP, heart rate
// and IF present and at least five minutes of duration.
func (s *Store) VO2Inputs(userID string) ([]analysis.VO2Input, error) {
	rows, err := s.db.Query(`
		SELECT start_time, normalized_power, avg_heart_rate, intensity_factor, duration,
			max_5min_power, max_10min_power
		FROM activities
		WHERE user_id = ?
			AND normalized_power IS NOT NULL
			AND avg_heart_rate IS NOT NULL
			AND intensity_factor IS NOT NULL
			AND duration >= 300
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []analysis.VO2Input
	for rows.Next() {
		var startTime string
		var in analysis.VO2Input
		err := rows.Scan(
			&startTime, &in.NormalizedPower, &in.AvgHeartRate, &in.IntensityFactor, &in.DurationS,
			&in.Max5MinPower, &in.Max10MinPower,
		)
		if err != nil {
			return nil, err
		}
		if in.StartTime, err = parseTime(startTime); err != nil {
			return nil, fmt.Errorf("parsing start_time: %w", err)
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// ActivitySummaries returns NP, heart rate, IF and best powers of every activity
func (s *Store) ActivitySummaries(userID string) ([]analysis.ActivitySummary, error) {
	rows, err := s.db.Query(`
		SELECT start_time, normalized_power, avg_heart_rate, intensity_factor,
			max_5sec_power, max_1min_power, max_3min_power, max_5min_power,
			max_10min_power, max_20min_power, max_30min_power
		FROM activities
		WHERE user_id = ?
		ORDER BY start_time
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.ActivitySummary
	for rows.Next() {
		var startTime string
		var r analysis.ActivitySummary
		b := &r.Best
		err := rows.Scan(
			&startTime, &r.NormalizedPower, &r.AvgHeartRate, &r.IntensityFactor,
			&b.Sec5, &b.Min1, &b.Min3, &b.Min5,
			&b.Min10, &b.Min20, &b.Min30,
		)
		if err != nil {
			return nil, err
		}
		if r.StartTime, err = parseTime(startTime); err != nil {
			return nil, fmt.Errorf("parsing start_time: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceCriticalPower sets the per-activity critical power of a user's
// activities to values and clears it on every activity not in values.
func (s *Store) ReplaceCriticalPower(userID string, values map[int64]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE activities SET critical_power = NULL WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing critical power: %w", err)
	}
	if err := updateCriticalPower(tx, values); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func updateCriticalPower(tx *sql.Tx, values map[int64]float64) error {
	stmt, err := tx.Prepare(`UPDATE activities SET critical_power = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for id, cp := range values {
		if _, err := stmt.Exec(cp, id); err != nil {
			return fmt.Errorf("updating activity %d: %w", id, err)
		}
	}
	return nil
}

// UpdateCriticalPower stores per-activity critical power values in one transaction
func (s *Store) UpdateCriticalPower(values map[int64]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateCriticalPower(tx, values); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RemoveDuplicateActivities deletes all but the first activity per file
// hash for a user, plus rows without a user. Zone rows follow by cascade.
// It returns the number of removed duplicates.
func (s *Store) RemoveDuplicateActivities(userID string) (int, error) {
	result, err := s.db.Exec(`
		DELETE FROM activities
		WHERE user_id = ?
			AND id NOT IN (
				SELECT MIN(id) FROM activities WHERE user_id = ? GROUP BY file_hash
			)
	`, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("removing duplicates: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	for _, table := range []string{"activities", "training_load", "vo2max_estimates"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table + ` WHERE user_id IS NULL OR TRIM(user_id) = ''`); err != nil {
			return int(removed), fmt.Errorf("removing rows without user from %s: %w", table, err)
		}
	}
	return int(removed), nil
}

// ZoneTotals sums the seconds per zone over all activities of a user.
// table is "power" or "hr"; zones follow the order of the zone table.
func (s *Store) ZoneTotals(userID, table string) (analysis.ZoneDistribution, error) {
	name, zoneTable, err := zoneTableFor(table)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT zone_label, SUM(seconds_in_zone) FROM `+name+`
		WHERE user_id = ?
		GROUP BY zone_label
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found analysis.ZoneDistribution
	for rows.Next() {
		var z analysis.ZoneSeconds
		if err := rows.Scan(&z.Label, &z.Seconds); err != nil {
			return nil, err
		}
		found = append(found, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return analysis.NewZoneDistribution(zoneTable).Add(found), nil
}

// ZonesByActivity returns the zone rows of a user's activities, oldest first
func (s *Store) ZonesByActivity(userID, table string) ([]ActivityZones, error) {
	name, zoneTable, err := zoneTableFor(table)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT a.id, a.start_time, z.zone_label, z.seconds_in_zone
		FROM `+name+` z
		JOIN activities a ON a.id = z.activity_id
		WHERE z.user_id = ?
		ORDER BY a.start_time, a.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityZones
	for rows.Next() {
		var id int64
		var startTime string
		var z analysis.ZoneSeconds
		if err := rows.Scan(&id, &startTime, &z.Label, &z.Seconds); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ActivityID != id {
			ts, err := parseTime(startTime)
			if err != nil {
				return nil, fmt.Errorf("parsing start_time: %w", err)
			}
			out = append(out, ActivityZones{
				ActivityID: id,
				StartTime:  ts,
				Zones:      analysis.NewZoneDistribution(zoneTable),
			})
		}
		last := &out[len(out)-1]
		last.Zones = last.Zones.Add(analysis.ZoneDistribution{z})
	}
	return out, rows.Err()
}

func zoneTableFor(table string) (string, []analysis.Zone, error) {
	switch strings.ToLower(table) {
	case "power":
		return "power_zones", analysis.PowerZoneTable, nil
	case "hr":
		return "hr_zones", analysis.HRZoneTable, nil
	}
	return "", nil, fmt.Errorf("unknown zone table %q", table)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
