package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridemetrics/internal/analysis"
	"ridemetrics/internal/cache"
	"ridemetrics/internal/config"
	"ridemetrics/internal/logging"
	"ridemetrics/internal/samplefile"
	"ridemetrics/internal/store"
)

var rideDay = time.Date(2024, 4, 2, 7, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu    sync.Mutex
	users []string
}

func (f *fakeScheduler) Schedule(user string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, user)
	return true
}

type testEnv struct {
	cfg       *config.Config
	store     *store.Store
	settings  *config.SettingsStore
	cache     *cache.Memory
	sched     *fakeScheduler
	importer  *Importer
	rebuilder *Rebuilder
	query     *QueryService
	incoming  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.DBPath = filepath.Join(dir, "data.db")
	cfg.ExportDir = filepath.Join(dir, "exports")
	cfg.Workers = 2

	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	settings := config.NewSettingsStore(cfg.SettingsDir())
	mem := cache.NewMemory(time.Minute)
	sched := &fakeScheduler{}
	log := logging.Nop()
	now := func() time.Time { return rideDay.Add(48 * time.Hour) }

	im := NewImporter(st, settings, &cfg, sched, log)
	im.now = now
	rb := NewRebuilder(st, settings, &cfg, mem, log)
	rb.now = now
	q := NewQueryService(st, settings, mem, log)
	q.now = now

	return &testEnv{
		cfg:       &cfg,
		store:     st,
		settings:  settings,
		cache:     mem,
		sched:     sched,
		importer:  im,
		rebuilder: rb,
		query:     q,
		incoming:  t.TempDir(),
	}
}

// ridePoints builds n one-second samples starting at start
func ridePoints(start time.Time, n int, withPower, withHR bool) []analysis.SamplePoint {
	points := make([]analysis.SamplePoint, n)
	for i := range points {
		p := analysis.SamplePoint{Timestamp: start.Add(time.Duration(i) * time.Second)}
		if withPower {
			w := float64(180 + (i % 60))
			p.Power = &w
		}
		if withHR {
			hr := 130 + (i % 25)
			p.HeartRate = &hr
		}
		points[i] = p
	}
	return points
}

// writeRide stores points as a parquet sample file in the incoming directory
func (e *testEnv) writeRide(t *testing.T, name string, points []analysis.SamplePoint) string {
	t.Helper()
	path := filepath.Join(e.incoming, name)
	require.NoError(t, samplefile.WriteParquet(path, points))
	return path
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	full := env.writeRide(t, "full.parquet", ridePoints(rideDay, 1200, true, true))
	hrOnly := env.writeRide(t, "hr-only.parquet", ridePoints(rideDay.Add(24*time.Hour), 600, false, true))
	notes := filepath.Join(env.incoming, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0644))

	report, err := env.importer.Import(ctx, "Anna", []string{full, hrOnly, notes})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	assert.Equal(t, OutcomeImported, report.Results[0].Outcome)
	assert.NotZero(t, report.Results[0].ActivityID)
	assert.Equal(t, OutcomeImportedNoPower, report.Results[1].Outcome)
	assert.Equal(t, OutcomeFailed, report.Results[2].Outcome)
	assert.ErrorIs(t, report.Results[2].Err, samplefile.ErrUnsupportedFormat)
	assert.Equal(t, 2, report.Imported)
	assert.Len(t, report.Errors, 1)

	// Files are kept in the user's sample directory
	assert.FileExists(t, filepath.Join(env.cfg.SampleDir("anna"), "full.parquet"))
	assert.FileExists(t, filepath.Join(env.cfg.SampleDir("anna"), "hr-only.parquet"))

	a, err := env.store.GetActivity(report.Results[0].ActivityID)
	require.NoError(t, err)
	assert.Equal(t, "anna", a.UserID)
	assert.Equal(t, store.SourceFile, a.Source)
	require.NotNil(t, a.AvgPower)
	require.NotNil(t, a.TSS)
	assert.NotNil(t, a.Min5)

	load, err := env.store.TrainingLoad("anna")
	require.NoError(t, err)
	assert.NotEmpty(t, load)

	assert.Equal(t, []string{"anna"}, env.sched.users)
}

func TestImport_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := env.writeRide(t, "ride.parquet", ridePoints(rideDay, 300, true, true))

	first, err := env.importer.Import(ctx, "anna", []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	second, err := env.importer.Import(ctx, "anna", []string{path})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.Equal(t, OutcomeDuplicate, second.Results[0].Outcome)
	assert.Zero(t, second.Imported)

	n, err := env.store.CountActivities("anna")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Nothing new was imported, so only the first import schedules a rebuild
	assert.Len(t, env.sched.users, 1)
}

func TestImport_SameFileName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, d := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(env.incoming, d), 0755))
	}
	first := env.writeRide(t, filepath.Join("a", "ride.parquet"), ridePoints(rideDay, 1200, true, true))
	second := env.writeRide(t, filepath.Join("b", "ride.parquet"), ridePoints(rideDay.Add(24*time.Hour), 400, true, true))

	report, err := env.importer.Import(ctx, "anna", []string{first, second})
	require.NoError(t, err)
	require.Equal(t, 2, report.Imported)

	a, err := env.store.GetActivity(report.Results[0].ActivityID)
	require.NoError(t, err)
	b, err := env.store.GetActivity(report.Results[1].ActivityID)
	require.NoError(t, err)
	assert.Equal(t, "ride.parquet", a.FileName)
	assert.NotEqual(t, a.FileName, b.FileName)

	files, err := samplefile.List(env.cfg.SampleDir("anna"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// Both rides still feed the all-time curve
	_, err = env.rebuilder.RebuildUser(ctx, "anna", Options{Modules: []string{ModulePowerCurve}})
	require.NoError(t, err)
	var curve analysis.PowerDurationCurve
	_, err = env.store.GetArtifact("anna", store.ArtifactPowerCurve, &curve)
	require.NoError(t, err)
	assert.Len(t, curve, 1200)

	var last analysis.PowerDurationCurve
	_, err = env.store.GetArtifact("anna", store.ArtifactPowerCurveLast, &last)
	require.NoError(t, err)
	assert.Len(t, last, 400)
}

func TestImport_NoTimestamps(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.incoming, "broken.fit")
	require.NoError(t, os.WriteFile(path, []byte("not a fit file"), 0644))

	report, err := env.importer.Import(context.Background(), "anna", []string{path})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.Empty(t, env.sched.users)
	assert.NoFileExists(t, filepath.Join(env.cfg.SampleDir("anna"), "broken.fit"))
}

func TestImport_InvalidUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.importer.Import(context.Background(), "../etc", nil)
	assert.ErrorIs(t, err, config.ErrInvalidUser)
}

func TestImportedOutcome(t *testing.T) {
	tests := []struct {
		power, hr bool
		want      string
	}{
		{true, true, OutcomeImported},
		{false, true, OutcomeImportedNoPower},
		{true, false, OutcomeImportedNoHR},
		{false, false, OutcomeImportedNoPowerNoHR},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, importedOutcome(tt.power, tt.hr))
	}
}
