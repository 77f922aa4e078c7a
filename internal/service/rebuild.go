package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ridemetrics/internal/analysis"
	"ridemetrics/internal/cache"
	"ridemetrics/internal/config"
	"ridemetrics/internal/instrument"
	"ridemetrics/internal/logging"
	"ridemetrics/internal/samplefile"
	"ridemetrics/internal/store"
)

// ErrUnknownModule is returned when a rebuild names a module that does not exist
var ErrUnknownModule = errors.New("unknown rebuild module")

// Rebuild modules
const (
	ModuleTrainingLoad    = "training_load"
	ModulePowerCurve      = "power_curve"
	ModuleCPPerActivity   = "cp_per_activity"
	ModuleCPModel         = "cp_model"
	ModuleVO2max          = "vo2max"
	ModuleEfficiency      = "efficiency"
	ModuleZones           = "zones"
	ModuleExport          = "export"
	ModulePowerBests      = "power_bests"
	ModulePowerTimeSeries = "power_time_series"
)

// Modules lists every rebuild module in execution order
var Modules = []string{
	ModuleTrainingLoad,
	ModulePowerCurve,
	ModuleCPPerActivity,
	ModuleCPModel,
	ModuleVO2max,
	ModuleEfficiency,
	ModuleZones,
	ModuleExport,
	ModulePowerBests,
	ModulePowerTimeSeries,
}

// Module statuses
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Options select what a rebuild runs
type Options struct {
	Modules   []string // empty runs all modules
	Selective bool     // skip users whose sample files did not change
}

// ModuleResult is the outcome of one module
type ModuleResult struct {
	Module   string        `json:"module"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RebuildReport is the outcome of rebuilding one user
type RebuildReport struct {
	RunID             string         `json:"run_id,omitempty"`
	User              string         `json:"user"`
	Unchanged         bool           `json:"unchanged,omitempty"` // selective mode found no changes
	DuplicatesRemoved int            `json:"duplicates_removed"`
	Modules           []ModuleResult `json:"modules"`
	Err               error          `json:"-"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
}

// Failed reports whether the user or any module failed
func (r *RebuildReport) Failed() bool {
	if r.Err != nil {
		return true
	}
	for _, m := range r.Modules {
		if m.Status == StatusFailed {
			return true
		}
	}
	return false
}

// CPHistoryPoint is the per-activity critical power at an activity's start
type CPHistoryPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	CriticalPower float64   `json:"critical_power"`
}

// ZoneSummary holds power and heart rate zone totals over all activities
// plus the per-activity detail of each
type ZoneSummary struct {
	Power            analysis.ZoneDistribution `json:"power"`
	HR               analysis.ZoneDistribution `json:"hr"`
	PowerPerActivity []store.ActivityZones     `json:"power_per_activity"`
	HRPerActivity    []store.ActivityZones     `json:"hr_per_activity"`
}

// Rebuilder recomputes the derived data of users
type Rebuilder struct {
	store    *store.Store
	settings *config.SettingsStore
	cfg      *config.Config
	cache    cache.ArtifactCache
	log      logging.Logger
	now      func() time.Time
}

// NewRebuilder creates a rebuilder. c may be nil.
func NewRebuilder(st *store.Store, settings *config.SettingsStore, cfg *config.Config, c cache.ArtifactCache, log logging.Logger) *Rebuilder {
	return &Rebuilder{
		store:    st,
		settings: settings,
		cfg:      cfg,
		cache:    c,
		log:      log,
		now:      time.Now,
	}
}

type moduleFunc func(ctx context.Context, run *userRun) error

func (r *Rebuilder) moduleFuncs() map[string]moduleFunc {
	return map[string]moduleFunc{
		ModuleTrainingLoad:    r.rebuildTrainingLoad,
		ModulePowerCurve:      r.rebuildPowerCurve,
		ModuleCPPerActivity:   r.rebuildCPPerActivity,
		ModuleCPModel:         r.rebuildCPModel,
		ModuleVO2max:          r.rebuildVO2max,
		ModuleEfficiency:      r.rebuildEfficiency,
		ModuleZones:           r.rebuildZones,
		ModuleExport:          r.rebuildExport,
		ModulePowerBests:      r.rebuildPowerBests,
		ModulePowerTimeSeries: r.rebuildPowerTimeSeries,
	}
}

// selectModules validates names and returns them in execution order
func selectModules(names []string) ([]string, error) {
	if len(names) == 0 {
		return Modules, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !isModule(n) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModule, n)
		}
		wanted[n] = true
	}
	if len(wanted) == 0 {
		return Modules, nil
	}

	var out []string
	for _, m := range Modules {
		if wanted[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

// ValidateModules reports ErrUnknownModule for any name that is not a module
func ValidateModules(names []string) error {
	_, err := selectModules(names)
	return err
}

func isModule(name string) bool {
	for _, m := range Modules {
		if m == name {
			return true
		}
	}
	return false
}

// userRun carries per-user state shared by the modules of one rebuild
type userRun struct {
	id       string
	user     string
	settings config.UserConfig
	today    time.Time
	log      logging.Logger

	activities  []store.Activity // newest first
	extractions map[int64]*analysis.Extraction
	curve       analysis.PowerDurationCurve
	curveBuilt  bool // power_curve ran in this rebuild; curve may be nil
}

// RebuildUser runs the selected modules for one user. Module failures are
// recorded in the report; the error is set when the user could not be
// rebuilt at all.
func (r *Rebuilder) RebuildUser(ctx context.Context, user string, opts Options) (*RebuildReport, error) {
	modules, err := selectModules(opts.Modules)
	if err != nil {
		return nil, err
	}
	user, err = config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}

	report := &RebuildReport{User: user, StartedAt: r.now()}
	fail := func(err error) (*RebuildReport, error) {
		report.Err = err
		report.FinishedAt = r.now()
		return report, err
	}

	removed, err := r.store.RemoveDuplicateActivities(user)
	if err != nil {
		return fail(err)
	}
	report.DuplicatesRemoved = removed

	files, err := samplefile.FingerprintDir(r.cfg.SampleDir(user))
	if err != nil {
		return fail(fmt.Errorf("scanning sample files: %w", err))
	}

	if opts.Selective {
		snapshots, err := r.store.FileSnapshots(user)
		if err != nil {
			return fail(err)
		}
		if !filesChanged(files, snapshots) {
			report.Unchanged = true
			report.FinishedAt = r.now()
			r.log.With("user", user).Debugf("no sample file changes, skipping")
			return report, nil
		}
	}

	settings, err := r.settings.Load(user)
	if err != nil {
		return fail(err)
	}

	run := &userRun{
		id:          uuid.NewString(),
		user:        user,
		settings:    settings,
		today:       r.now(),
		extractions: make(map[int64]*analysis.Extraction),
	}
	run.log = r.log.With("user", user, "run", run.id)
	report.RunID = run.id

	funcs := r.moduleFuncs()
	for _, name := range modules {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		report.Modules = append(report.Modules, r.runModule(ctx, run, name, funcs[name]))
	}

	// Snapshots describe a complete rebuild; a partial one leaves them alone
	if !report.Failed() && len(modules) == len(Modules) {
		if err := r.store.ReplaceFileSnapshots(user, snapshotsOf(files)); err != nil {
			run.log.Errorf("refreshing file snapshots: %v", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, user); err != nil {
			run.log.Warnf("invalidating cache: %v", err)
		}
	}

	report.FinishedAt = r.now()
	return report, nil
}

func (r *Rebuilder) runModule(ctx context.Context, run *userRun, name string, fn moduleFunc) ModuleResult {
	log := run.log.With("module", name)
	started := time.Now()

	err := fn(ctx, run)

	res := ModuleResult{Module: name, Status: StatusOK, Duration: time.Since(started)}
	switch {
	case err == nil:
		log.Debugf("done in %s", res.Duration)
	case errors.Is(err, analysis.ErrInsufficientData):
		res.Status = StatusSkipped
		log.Infof("skipped: %v", err)
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
		log.Errorf("failed: %v", err)
	}
	instrument.ObserveModule(name, res.Status, res.Duration)

	if err := r.store.RecordRun(store.RebuildRun{
		RunID:      run.id,
		UserID:     run.user,
		Module:     name,
		Status:     res.Status,
		Error:      res.Error,
		StartedAt:  started,
		FinishedAt: started.Add(res.Duration),
	}); err != nil {
		log.Warnf("recording run: %v", err)
	}
	return res
}

// RebuildAll rebuilds every known user with at most cfg.Workers users in
// parallel. A failing user never stops the others.
func (r *Rebuilder) RebuildAll(ctx context.Context, opts Options) ([]*RebuildReport, error) {
	if _, err := selectModules(opts.Modules); err != nil {
		return nil, err
	}
	users, err := r.Users()
	if err != nil {
		return nil, err
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		reports = make([]*RebuildReport, 0, len(users))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, user := range users {
		g.Go(func() error {
			report, err := r.RebuildUser(gctx, user, opts)
			if report == nil {
				report = &RebuildReport{User: user, Err: err}
			}
			if err != nil {
				r.log.With("user", user).Errorf("rebuild failed: %v", err)
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].User < reports[j].User })
	return reports, ctx.Err()
}

// Users returns every user known to the store or owning a sample directory
func (r *Rebuilder) Users() ([]string, error) {
	seen := make(map[string]bool)

	stored, err := r.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for _, u := range stored {
		if n, err := config.NormalizeUser(u); err == nil {
			seen[n] = true
		}
	}

	entries, err := os.ReadDir(r.cfg.SamplesRoot())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("listing sample directories: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, err := config.NormalizeUser(e.Name()); err == nil {
			seen[n] = true
		}
	}

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// filesChanged compares the current sample files with the snapshot of the
// last successful rebuild. New, modified and deleted files count.
func filesChanged(files map[string]samplefile.Fingerprint, snapshots map[string]store.FileSnapshot) bool {
	if len(files) != len(snapshots) {
		return true
	}
	for name, fp := range files {
		snap, ok := snapshots[name]
		if !ok || snap.FileSize != fp.Size || snap.FileHash != fp.MD5 {
			return true
		}
	}
	return false
}

func snapshotsOf(files map[string]samplefile.Fingerprint) []store.FileSnapshot {
	out := make([]store.FileSnapshot, 0, len(files))
	for _, fp := range files {
		out = append(out, store.FileSnapshot{FileName: fp.Name, FileSize: fp.Size, FileHash: fp.MD5})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}
