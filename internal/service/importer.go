package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"ridemetrics/internal/analysis"
	"ridemetrics/internal/config"
	"ridemetrics/internal/instrument"
	"ridemetrics/internal/logging"
	"ridemetrics/internal/samplefile"
	"ridemetrics/internal/store"
)

// Import outcomes
const (
	OutcomeImported            = "imported"
	OutcomeImportedNoPower     = "imported (no power)"
	OutcomeImportedNoHR        = "imported (no heart rate)"
	OutcomeImportedNoPowerNoHR = "imported (no power, no heart rate)"
	OutcomeDuplicate           = "duplicate"
	OutcomeFailed              = "failed"
)

// Scheduler accepts users whose derived data should be rebuilt in the background
type Scheduler interface {
	Schedule(user string) bool
}

// Importer turns raw sample files into stored activities
type Importer struct {
	store    *store.Store
	settings *config.SettingsStore
	cfg      *config.Config
	trigger  Scheduler
	log      logging.Logger
	now      func() time.Time
}

// NewImporter creates an importer. trigger may be nil.
func NewImporter(st *store.Store, settings *config.SettingsStore, cfg *config.Config, trigger Scheduler, log logging.Logger) *Importer {
	return &Importer{
		store:    st,
		settings: settings,
		cfg:      cfg,
		trigger:  trigger,
		log:      log,
		now:      time.Now,
	}
}

// ImportResult is the outcome of one file
type ImportResult struct {
	File       string
	Outcome    string
	ActivityID int64
	Err        error
}

// ImportReport contains the results of an import
type ImportReport struct {
	Results  []ImportResult
	Imported int
	Errors   []error
}

// Import imports files for a user. Per-file failures are collected in the
// report; the returned error is only set for an invalid user or settings.
func (im *Importer) Import(ctx context.Context, user string, paths []string) (*ImportReport, error) {
	return im.importFiles(ctx, user, store.SourceFile, paths)
}

func (im *Importer) importFiles(ctx context.Context, user, source string, paths []string) (*ImportReport, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	settings, err := im.settings.Load(user)
	if err != nil {
		return nil, fmt.Errorf("loading settings of %s: %w", user, err)
	}

	log := im.log.With("user", user)
	report := &ImportReport{}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err)
			break
		}

		res := im.importOne(user, source, path, settings)
		instrument.ImportsTotal.WithLabelValues(res.Outcome).Inc()
		report.Results = append(report.Results, res)

		switch res.Outcome {
		case OutcomeFailed:
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", res.File, res.Err))
			log.Warnf("import of %s failed: %v", res.File, res.Err)
		case OutcomeDuplicate:
			log.Debugf("skipping duplicate %s", res.File)
		default:
			report.Imported++
			log.Infof("%s: %s", res.File, res.Outcome)
		}
	}

	if report.Imported == 0 {
		return report, nil
	}

	// The import stands even if the load update fails; the background
	// rebuild recomputes it.
	if _, err := updateTrainingLoad(im.store, user, im.now()); err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
		log.Errorf("updating training load: %v", err)
	}
	if im.trigger != nil {
		im.trigger.Schedule(user)
	}

	return report, nil
}

func (im *Importer) importOne(user, source, path string, settings config.UserConfig) ImportResult {
	res := ImportResult{File: filepath.Base(path), Outcome: OutcomeFailed}
	fail := func(err error) ImportResult {
		res.Err = err
		return res
	}

	if !samplefile.Supported(path) {
		return fail(samplefile.ErrUnsupportedFormat)
	}

	fp, err := samplefile.FingerprintFile(path)
	if err != nil {
		return fail(fmt.Errorf("fingerprinting: %w", err))
	}
	exists, err := im.store.ActivityExists(user, fp.MD5)
	if err != nil {
		return fail(err)
	}
	if exists {
		res.Outcome = OutcomeDuplicate
		return res
	}

	points, err := samplefile.Read(path)
	if err != nil {
		return fail(err)
	}
	ext, err := analysis.ExtractSeries(points)
	if err != nil {
		return fail(err)
	}

	metrics := analysis.ComputeActivityMetrics(ext, settings.FTP)

	var powerZones, hrZones analysis.ZoneDistribution
	if metrics.AvgPower != nil {
		powerZones, _ = analysis.PowerZones(ext.Power, settings.FTP)
	}
	if metrics.AvgHeartRate != nil {
		hrZones, _ = analysis.HRZones(ext.HeartRate, settings.HRMax)
	}

	stored, err := samplefile.CopyInto(path, im.cfg.SampleDir(user), fp.MD5)
	if err != nil {
		return fail(fmt.Errorf("storing sample file: %w", err))
	}

	a := &store.Activity{
		UserID:           user,
		FileName:         filepath.Base(stored),
		FileHash:         fp.MD5,
		FileSize:         fp.Size,
		StartTime:        ext.StartTime,
		DurationS:        ext.DurationS,
		DistanceKm:       ext.DistanceKm,
		AvgPower:         metrics.AvgPower,
		AvgHeartRate:     metrics.AvgHeartRate,
		NormalizedPower:  metrics.NormalizedPower,
		TSS:              metrics.TSS,
		IntensityFactor:  metrics.IntensityFactor,
		EfficiencyFactor: metrics.EfficiencyFactor,
		Source:           source,
		BestPowers:       metrics.Best,
	}
	id, err := im.store.InsertActivityWithZones(a, powerZones, hrZones)
	if err != nil {
		return fail(err)
	}

	res.ActivityID = id
	res.Outcome = importedOutcome(metrics.AvgPower != nil, metrics.AvgHeartRate != nil)
	return res
}

func importedOutcome(hasPower, hasHR bool) string {
	switch {
	case hasPower && hasHR:
		return OutcomeImported
	case hasHR:
		return OutcomeImportedNoPower
	case hasPower:
		return OutcomeImportedNoHR
	default:
		return OutcomeImportedNoPowerNoHR
	}
}

// updateTrainingLoad recomputes and stores a user's CTL/ATL/TSB series
func updateTrainingLoad(st *store.Store, user string, today time.Time) ([]analysis.TrainingLoadPoint, error) {
	loads, err := st.ActivityLoads(user)
	if err != nil {
		return nil, fmt.Errorf("loading activity loads: %w", err)
	}

	points := analysis.CalculateTrainingLoad(loads, today)
	if err := st.ReplaceTrainingLoad(user, points); err != nil {
		return nil, fmt.Errorf("storing training load: %w", err)
	}
	if len(points) == 0 {
		return nil, analysis.ErrInsufficientData
	}
	return points, nil
}
