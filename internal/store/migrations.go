package store

import "database/sql"

// migrate runs all database migrations
func migrate(db *sql.DB) error {
	migrations := []string{
		// Activities (one row per imported sample file)
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			duration INTEGER,
			distance_km REAL,
			avg_power REAL,
			avg_heart_rate REAL,
			normalized_power REAL,
			tss REAL,
			intensity_factor REAL,
			efficiency_factor REAL,
			max_5sec_power REAL,
			max_1min_power REAL,
			max_3min_power REAL,
			max_5min_power REAL,
			max_10min_power REAL,
			max_20min_power REAL,
			max_30min_power REAL,
			critical_power REAL,
			source TEXT NOT NULL DEFAULT 'file',
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, file_hash)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activities_user_start ON activities(user_id, start_time)`,

		// Seconds per zone and activity
		`CREATE TABLE IF NOT EXISTS power_zones (
			activity_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			zone_label TEXT NOT NULL,
			seconds_in_zone INTEGER NOT NULL,
			PRIMARY KEY (activity_id, zone_label),
			FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS hr_zones (
			activity_id INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			zone_label TEXT NOT NULL,
			seconds_in_zone INTEGER NOT NULL,
			PRIMARY KEY (activity_id, zone_label),
			FOREIGN KEY (activity_id) REFERENCES activities(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_power_zones_user ON power_zones(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_hr_zones_user ON hr_zones(user_id)`,

		// Daily CTL/ATL/TSB
		`CREATE TABLE IF NOT EXISTS training_load (
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			tss REAL NOT NULL,
			ctl REAL NOT NULL,
			atl REAL NOT NULL,
			tsb REAL NOT NULL,
			PRIMARY KEY (user_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS vo2max_estimates (
			user_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			vo2max_abs REAL NOT NULL,
			vo2max_rel REAL NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_vo2max_user ON vo2max_estimates(user_id, timestamp)`,

		// Derived artifacts as JSON documents
		`CREATE TABLE IF NOT EXISTS artifacts (
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			payload TEXT NOT NULL,
			computed_at TEXT NOT NULL,
			PRIMARY KEY (user_id, name)
		)`,

		// Sample files seen by the last successful rebuild
		`CREATE TABLE IF NOT EXISTS file_snapshots (
			user_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			file_hash TEXT NOT NULL,
			PRIMARY KEY (user_id, file_name)
		)`,

		`CREATE TABLE IF NOT EXISTS rebuild_runs (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			module TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rebuild_runs_run ON rebuild_runs(run_id)`,

		// Strava authentication per user
		`CREATE TABLE IF NOT EXISTS strava_auth (
			user_id TEXT PRIMARY KEY,
			athlete_id INTEGER NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS strava_imports (
			user_id TEXT NOT NULL,
			strava_id INTEGER NOT NULL,
			imported_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, strava_id)
		)`,

		// Sync State (per-user key-value store for sync tracking)
		`CREATE TABLE IF NOT EXISTS sync_state (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, key)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}

	return nil
}
