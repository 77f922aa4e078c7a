package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridemetrics/internal/analysis"
)

func floatPtr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}

// setupTestStore creates an in-memory store for testing
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func testActivity(user, hash string, start time.Time) *Activity {
	a := &Activity{
		UserID:          user,
		FileName:        hash + ".fit",
		FileHash:        hash,
		FileSize:        1024,
		StartTime:       start,
		DurationS:       intPtr(3600),
		DistanceKm:      floatPtr(30.5),
		AvgPower:        floatPtr(190),
		AvgHeartRate:    floatPtr(145),
		NormalizedPower: floatPtr(200),
		TSS:             floatPtr(64),
		IntensityFactor: floatPtr(0.8),
	}
	a.Min5 = floatPtr(260)
	a.Min10 = floatPtr(240)
	return a
}

var day0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func TestInsertActivityWithZones(t *testing.T) {
	s := setupTestStore(t)

	power := analysis.ZoneDistribution{
		{Label: "Z1 (Recovery)", Seconds: 600},
		{Label: "Z2 (Endurance)", Seconds: 0},
		{Label: "Z3 (Tempo)", Seconds: 3000},
	}
	hr := analysis.ZoneDistribution{{Label: "Z2 (Grundlage)", Seconds: 3600}}

	id, err := s.InsertActivityWithZones(testActivity("alice", "h1", day0), power, hr)
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := s.GetActivity(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.True(t, got.StartTime.Equal(day0))
	assert.Equal(t, SourceFile, got.Source)
	require.NotNil(t, got.DurationS)
	assert.Equal(t, 3600, *got.DurationS)
	require.NotNil(t, got.Min5)
	assert.Equal(t, 260.0, *got.Min5)
	assert.Nil(t, got.Min30)
	assert.Nil(t, got.CriticalPower)

	totals, err := s.ZoneTotals("alice", "power")
	require.NoError(t, err)
	assert.Len(t, totals, len(analysis.PowerZoneTable))
	assert.Equal(t, 600, totals.Seconds("Z1 (Recovery)"))
	assert.Equal(t, 3000, totals.Seconds("Z3 (Tempo)"))

	var rows int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM power_zones`).Scan(&rows))
	assert.Equal(t, 2, rows, "zero-second zones are not stored")

	byActivity, err := s.ZonesByActivity("alice", "hr")
	require.NoError(t, err)
	require.Len(t, byActivity, 1)
	assert.Equal(t, 3600, byActivity[0].Zones.Seconds("Z2 (Grundlage)"))
}

func TestInsertActivity_DuplicateHashRejected(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.InsertActivityWithZones(testActivity("alice", "h1", day0), nil, nil)
	require.NoError(t, err)

	_, err = s.InsertActivityWithZones(testActivity("alice", "h1", day0), nil, nil)
	assert.Error(t, err)

	// same file for another user is fine
	_, err = s.InsertActivityWithZones(testActivity("bob", "h1", day0), nil, nil)
	assert.NoError(t, err)

	exists, err := s.ActivityExists("alice", "h1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.ActivityExists("alice", "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetActivity_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetActivity(42)
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestListActivitiesAndUsers(t *testing.T) {
	s := setupTestStore(t)

	for i, hash := range []string{"a", "b", "c"} {
		_, err := s.InsertActivityWithZones(testActivity("alice", hash, day0.AddDate(0, 0, i)), nil, nil)
		require.NoError(t, err)
	}
	_, err := s.InsertActivityWithZones(testActivity("bob", "x", day0), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveAuth("carol", &Auth{AthleteID: 7, AccessToken: "a", RefreshToken: "r", ExpiresAt: day0}))

	list, err := s.ListActivities("alice", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].FileHash, "newest first")

	all, err := s.ListActivities("alice", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	count, err := s.CountActivities("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	users, err := s.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)
}

func TestAnalysisInputs(t *testing.T) {
	s := setupTestStore(t)

	full := testActivity("alice", "full", day0)
	short := testActivity("alice", "short", day0.AddDate(0, 0, 1))
	short.DurationS = intPtr(200)
	noHR := testActivity("alice", "nohr", day0.AddDate(0, 0, 2))
	noHR.AvgHeartRate = nil
	noHR.TSS = nil

	for _, a := range []*Activity{full, short, noHR} {
		_, err := s.InsertActivityWithZones(a, nil, nil)
		require.NoError(t, err)
	}

	loads, err := s.ActivityLoads("alice")
	require.NoError(t, err)
	require.Len(t, loads, 3)
	assert.Nil(t, loads[2].TSS)

	vo2, err := s.VO2Inputs("alice")
	require.NoError(t, err)
	require.Len(t, vo2, 1, "short and heart-rate-less activities are excluded")
	assert.Equal(t, 260.0, *vo2[0].Max5MinPower)

	summaries, err := s.ActivitySummaries("alice")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, 240.0, *summaries[0].Best.Min10)
}

func TestUpdateCriticalPower(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.InsertActivityWithZones(testActivity("alice", "h1", day0), nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateCriticalPower(map[int64]float64{id: 251.3}))

	got, err := s.GetActivity(id)
	require.NoError(t, err)
	require.NotNil(t, got.CriticalPower)
	assert.Equal(t, 251.3, *got.CriticalPower)
}

func TestReplaceCriticalPower(t *testing.T) {
	s := setupTestStore(t)

	kept, err := s.InsertActivityWithZones(testActivity("alice", "h1", day0), nil, nil)
	require.NoError(t, err)
	cleared, err := s.InsertActivityWithZones(testActivity("alice", "h2", day0.Add(time.Hour)), nil, nil)
	require.NoError(t, err)
	other, err := s.InsertActivityWithZones(testActivity("bob", "h3", day0), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateCriticalPower(map[int64]float64{kept: 240, cleared: 230, other: 220}))

	require.NoError(t, s.ReplaceCriticalPower("alice", map[int64]float64{kept: 245}))

	got, err := s.GetActivity(kept)
	require.NoError(t, err)
	require.NotNil(t, got.CriticalPower)
	assert.Equal(t, 245.0, *got.CriticalPower)

	got, err = s.GetActivity(cleared)
	require.NoError(t, err)
	assert.Nil(t, got.CriticalPower, "activities without a value are cleared")

	got, err = s.GetActivity(other)
	require.NoError(t, err)
	require.NotNil(t, got.CriticalPower, "other users are untouched")
	assert.Equal(t, 220.0, *got.CriticalPower)
}

func TestReplaceActivityZones(t *testing.T) {
	s := setupTestStore(t)

	first, err := s.InsertActivityWithZones(testActivity("alice", "h1", day0),
		analysis.ZoneDistribution{{Label: "Z1 (Recovery)", Seconds: 600}},
		analysis.ZoneDistribution{{Label: "Z2 (Grundlage)", Seconds: 600}})
	require.NoError(t, err)
	_, err = s.InsertActivityWithZones(testActivity("alice", "h2", day0.Add(time.Hour)),
		analysis.ZoneDistribution{{Label: "Z1 (Recovery)", Seconds: 100}}, nil)
	require.NoError(t, err)

	require.NoError(t, s.ReplaceActivityZones("alice", []ActivityZoneSet{{
		ActivityID: first,
		Power:      analysis.ZoneDistribution{{Label: "Z6 (Anaerob)", Seconds: 500}},
	}}))

	power, err := s.ZoneTotals("alice", "power")
	require.NoError(t, err)
	assert.Equal(t, 100, power.Seconds("Z1 (Recovery)"), "unlisted activities keep their rows")
	assert.Equal(t, 500, power.Seconds("Z6 (Anaerob)"))

	hr, err := s.ZoneTotals("alice", "hr")
	require.NoError(t, err)
	assert.Nil(t, hr, "heart rate rows of the replaced activity are gone")
}

func TestRemoveDuplicateActivities(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.InsertActivityWithZones(testActivity("alice", "h1", day0), analysis.ZoneDistribution{{Label: "Z1 (Recovery)", Seconds: 10}}, nil)
	require.NoError(t, err)
	_, err = s.InsertActivityWithZones(testActivity("", "orphan", day0), nil, nil)
	require.NoError(t, err)

	removed, err := s.RemoveDuplicateActivities("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	got, err := s.GetActivity(id)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.FileHash)

	var orphans int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM activities WHERE user_id = ''`).Scan(&orphans))
	assert.Zero(t, orphans, "rows without a user are removed")
}

func TestReplaceTrainingLoad(t *testing.T) {
	s := setupTestStore(t)

	points := analysis.CalculateTrainingLoad([]analysis.ActivityLoad{
		{StartTime: day0, TSS: floatPtr(100)},
	}, day0.AddDate(0, 0, 2))
	require.Len(t, points, 3)

	require.NoError(t, s.ReplaceTrainingLoad("alice", points))
	// replacing again must not duplicate rows
	require.NoError(t, s.ReplaceTrainingLoad("alice", points))

	got, err := s.TrainingLoad("alice")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Date.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 100.0/42, got[0].CTL, 1e-9)
	assert.Equal(t, 0.0, got[2].TSS)
}

func TestReplaceVO2max(t *testing.T) {
	s := setupTestStore(t)

	estimates := []analysis.VO2maxEstimate{
		{Timestamp: day0, Absolute: 4500, Relative: 64.3},
		{Timestamp: day0.AddDate(0, 0, 7), Absolute: 4550, Relative: 65},
	}
	require.NoError(t, s.ReplaceVO2max("alice", estimates))

	got, err := s.VO2max("alice")
	require.NoError(t, err)
	assert.Equal(t, estimates, got)
}

func TestArtifacts(t *testing.T) {
	s := setupTestStore(t)

	var curve analysis.PowerDurationCurve
	_, err := s.GetArtifact("alice", ArtifactPowerCurve, &curve)
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	require.NoError(t, s.SaveArtifact("alice", ArtifactPowerCurve, analysis.PowerDurationCurve{400, 350}))
	require.NoError(t, s.SaveArtifact("alice", ArtifactPowerCurve, analysis.PowerDurationCurve{410, 360, 300}))

	computedAt, err := s.GetArtifact("alice", ArtifactPowerCurve, &curve)
	require.NoError(t, err)
	assert.Equal(t, analysis.PowerDurationCurve{410, 360, 300}, curve)
	assert.False(t, computedAt.IsZero())

	require.NoError(t, s.DeleteArtifact("alice", ArtifactPowerCurve))
	_, err = s.GetArtifact("alice", ArtifactPowerCurve, &curve)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestFileSnapshots(t *testing.T) {
	s := setupTestStore(t)

	snaps, err := s.FileSnapshots("alice")
	require.NoError(t, err)
	assert.Empty(t, snaps)

	require.NoError(t, s.ReplaceFileSnapshots("alice", []FileSnapshot{
		{FileName: "a.fit", FileSize: 10, FileHash: "x"},
		{FileName: "b.fit", FileSize: 20, FileHash: "y"},
	}))
	require.NoError(t, s.ReplaceFileSnapshots("alice", []FileSnapshot{
		{FileName: "b.fit", FileSize: 21, FileHash: "z"},
	}))

	snaps, err = s.FileSnapshots("alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]FileSnapshot{"b.fit": {FileName: "b.fit", FileSize: 21, FileHash: "z"}}, snaps)
}

func TestRecordRun(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.RecordRun(RebuildRun{RunID: "r1", UserID: "alice", Module: "training_load", Status: "ok", StartedAt: day0, FinishedAt: day0}))
	require.NoError(t, s.RecordRun(RebuildRun{RunID: "r1", UserID: "alice", Module: "vo2max", Status: "failed", Error: "boom", StartedAt: day0, FinishedAt: day0}))

	runs, err := s.RunsForUser("alice", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "vo2max", runs[0].Module)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Empty(t, runs[1].Error)
}

func TestAuth(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetAuth("alice")
	assert.ErrorIs(t, err, ErrNoAuth)
	assert.ErrorIs(t, s.UpdateTokens("alice", "a", "r", day0), ErrNoAuth)

	require.NoError(t, s.SaveAuth("alice", &Auth{AthleteID: 99, AccessToken: "a1", RefreshToken: "r1", ExpiresAt: day0}))
	require.NoError(t, s.UpdateTokens("alice", "a2", "r2", day0.Add(time.Hour)))

	auth, err := s.GetAuth("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(99), auth.AthleteID)
	assert.Equal(t, "a2", auth.AccessToken)
	assert.True(t, auth.ExpiresAt.Equal(day0.Add(time.Hour)))

	require.NoError(t, s.DeleteAuth("alice"))
	_, err = s.GetAuth("alice")
	assert.ErrorIs(t, err, ErrNoAuth)
}

func TestStravaImportsAndSyncState(t *testing.T) {
	s := setupTestStore(t)

	imported, err := s.StravaImported("alice", 123)
	require.NoError(t, err)
	assert.False(t, imported)

	require.NoError(t, s.MarkStravaImported("alice", 123))
	require.NoError(t, s.MarkStravaImported("alice", 123))

	imported, err = s.StravaImported("alice", 123)
	require.NoError(t, err)
	assert.True(t, imported)

	v, err := s.GetSyncState("alice", SyncKeyLastStravaSync)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetSyncState("alice", SyncKeyLastStravaSync, "1700000000"))
	v, err = s.GetSyncState("alice", SyncKeyLastStravaSync)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", v)
}
