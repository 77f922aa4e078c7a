package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"ridemetrics/internal/analysis"
	"ridemetrics/internal/samplefile"
	"ridemetrics/internal/store"
)

// ExportFileName is the name of the per-user activity export
const ExportFileName = "activities.parquet"

// loadActivities fetches the user's activities once per run
func (r *Rebuilder) loadActivities(run *userRun) ([]store.Activity, error) {
	if run.activities != nil {
		return run.activities, nil
	}
	activities, err := r.store.ListActivities(run.user, 0)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	if activities == nil {
		activities = []store.Activity{}
	}
	run.activities = activities
	return activities, nil
}

// extraction returns the extracted samples of an activity's sample file. A
// missing or unreadable file yields nil and is logged.
func (r *Rebuilder) extraction(run *userRun, a store.Activity) *analysis.Extraction {
	if ext, ok := run.extractions[a.ID]; ok {
		return ext
	}

	var ext *analysis.Extraction
	path := filepath.Join(r.cfg.SampleDir(run.user), a.FileName)
	points, err := samplefile.Read(path)
	if err == nil {
		ext, err = analysis.ExtractSeries(points)
	}
	if err != nil {
		run.log.Warnf("reading samples of %s: %v", a.FileName, err)
	}

	run.extractions[a.ID] = ext
	return ext
}

// powerSeries returns the power samples of an activity, nil when its file
// cannot be read
func (r *Rebuilder) powerSeries(run *userRun, a store.Activity) []float64 {
	if ext := r.extraction(run, a); ext != nil {
		return ext.Power
	}
	return nil
}

// allSeries returns the power series of every activity, newest first
func (r *Rebuilder) allSeries(ctx context.Context, run *userRun) ([][]float64, error) {
	activities, err := r.loadActivities(run)
	if err != nil {
		return nil, err
	}
	series := make([][]float64, 0, len(activities))
	for _, a := range activities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series = append(series, r.powerSeries(run, a))
	}
	return series, nil
}

func (r *Rebuilder) rebuildTrainingLoad(_ context.Context, run *userRun) error {
	_, err := updateTrainingLoad(r.store, run.user, run.today)
	return err
}

func (r *Rebuilder) rebuildPowerCurve(ctx context.Context, run *userRun) error {
	series, err := r.allSeries(ctx, run)
	if err != nil {
		return err
	}

	// Stored curves are always unweighted; per-kilogram views scale on read
	run.curveBuilt = true
	curve, err := analysis.AllTimeCurve(series, 0)
	if errors.Is(err, analysis.ErrInsufficientData) {
		if err := r.deleteArtifacts(run.user, store.ArtifactPowerCurve, store.ArtifactPowerCurveLast); err != nil {
			return err
		}
		return analysis.ErrInsufficientData
	}
	if err != nil {
		return err
	}
	if err := r.store.SaveArtifact(run.user, store.ArtifactPowerCurve, curve); err != nil {
		return err
	}
	run.curve = curve

	last, err := analysis.LastActivityCurve(series, 0)
	if errors.Is(err, analysis.ErrInsufficientData) {
		return r.store.DeleteArtifact(run.user, store.ArtifactPowerCurveLast)
	}
	if err != nil {
		return err
	}
	return r.store.SaveArtifact(run.user, store.ArtifactPowerCurveLast, last)
}

func (r *Rebuilder) rebuildCPPerActivity(ctx context.Context, run *userRun) error {
	activities, err := r.loadActivities(run)
	if err != nil {
		return err
	}

	values := make(map[int64]float64)
	var history []CPHistoryPoint
	for i := range activities {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := &activities[i]
		cp := analysis.ActivityCriticalPower(r.powerSeries(run, *a))
		if cp == nil {
			continue
		}
		values[a.ID] = *cp
		a.CriticalPower = cp
		history = append(history, CPHistoryPoint{Timestamp: a.StartTime, CriticalPower: *cp})
	}

	// Activities without a proxy lose any value from an earlier run
	if err := r.store.ReplaceCriticalPower(run.user, values); err != nil {
		return err
	}
	for i := range activities {
		if _, ok := values[activities[i].ID]; !ok {
			activities[i].CriticalPower = nil
		}
	}
	if len(values) == 0 {
		if err := r.deleteArtifacts(run.user, store.ArtifactCPHistory); err != nil {
			return err
		}
		return analysis.ErrInsufficientData
	}

	sort.Slice(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })
	return r.store.SaveArtifact(run.user, store.ArtifactCPHistory, history)
}

// rebuildCPModel fits the curve built by power_curve in the same run, or the
// stored curve when power_curve was not selected
func (r *Rebuilder) rebuildCPModel(_ context.Context, run *userRun) error {
	curve := run.curve
	if !run.curveBuilt {
		_, err := r.store.GetArtifact(run.user, store.ArtifactPowerCurve, &curve)
		if err != nil && !errors.Is(err, store.ErrArtifactNotFound) {
			return err
		}
	}

	model, err := analysis.FitCriticalPower(curve)
	if errors.Is(err, analysis.ErrCurveMismatch) || errors.Is(err, analysis.ErrInvalidCurve) {
		err = fmt.Errorf("%w: %v", analysis.ErrInsufficientData, err)
	}
	if errors.Is(err, analysis.ErrInsufficientData) {
		if derr := r.deleteArtifacts(run.user, store.ArtifactCPModel); derr != nil {
			return derr
		}
		return err
	}
	if err != nil {
		return err
	}
	return r.store.SaveArtifact(run.user, store.ArtifactCPModel, model)
}

func (r *Rebuilder) rebuildVO2max(_ context.Context, run *userRun) error {
	rows, err := r.store.VO2Inputs(run.user)
	if err != nil {
		return err
	}
	estimates, err := analysis.EstimateVO2max(rows, run.settings.Weight, run.settings.HRMax)
	if errors.Is(err, analysis.ErrInsufficientData) {
		// Drop estimates left over from activities that no longer qualify
		if err := r.store.ReplaceVO2max(run.user, nil); err != nil {
			return err
		}
		return analysis.ErrInsufficientData
	}
	if err != nil {
		return err
	}
	return r.store.ReplaceVO2max(run.user, estimates)
}

func (r *Rebuilder) rebuildEfficiency(_ context.Context, run *userRun) error {
	rows, err := r.store.ActivitySummaries(run.user)
	if err != nil {
		return err
	}
	series := analysis.EfficiencySeries(rows)
	if len(series) == 0 {
		if err := r.deleteArtifacts(run.user, store.ArtifactEfficiency); err != nil {
			return err
		}
		return analysis.ErrInsufficientData
	}
	return r.store.SaveArtifact(run.user, store.ArtifactEfficiency, series)
}

// rebuildZones recomputes every activity's zones from its samples with the
// current thresholds, then summarizes the stored zone rows
func (r *Rebuilder) rebuildZones(ctx context.Context, run *userRun) error {
	activities, err := r.loadActivities(run)
	if err != nil {
		return err
	}

	sets := make([]store.ActivityZoneSet, 0, len(activities))
	for _, a := range activities {
		if err := ctx.Err(); err != nil {
			return err
		}
		ext := r.extraction(run, a)
		if ext == nil {
			// keep the rows from import
			continue
		}
		set := store.ActivityZoneSet{ActivityID: a.ID}
		if a.AvgPower != nil {
			if set.Power, err = analysis.PowerZones(ext.Power, run.settings.FTP); err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
				return err
			}
		}
		if a.AvgHeartRate != nil {
			if set.HR, err = analysis.HRZones(ext.HeartRate, run.settings.HRMax); err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
				return err
			}
		}
		sets = append(sets, set)
	}
	if err := r.store.ReplaceActivityZones(run.user, sets); err != nil {
		return err
	}

	var summary ZoneSummary
	if summary.Power, err = r.store.ZoneTotals(run.user, "power"); err != nil {
		return err
	}
	if summary.HR, err = r.store.ZoneTotals(run.user, "hr"); err != nil {
		return err
	}
	if summary.Power == nil && summary.HR == nil {
		if err := r.deleteArtifacts(run.user, store.ArtifactZones); err != nil {
			return err
		}
		return analysis.ErrInsufficientData
	}
	if summary.PowerPerActivity, err = r.store.ZonesByActivity(run.user, "power"); err != nil {
		return err
	}
	if summary.HRPerActivity, err = r.store.ZonesByActivity(run.user, "hr"); err != nil {
		return err
	}
	return r.store.SaveArtifact(run.user, store.ArtifactZones, summary)
}

func (r *Rebuilder) rebuildExport(_ context.Context, run *userRun) error {
	activities, err := r.loadActivities(run)
	if err != nil {
		return err
	}
	if len(activities) == 0 {
		return analysis.ErrInsufficientData
	}

	rows := make([]samplefile.ActivityRow, 0, len(activities))
	for i := len(activities) - 1; i >= 0; i-- {
		rows = append(rows, exportRow(activities[i]))
	}
	path := filepath.Join(r.cfg.UserExportDir(run.user), ExportFileName)
	if err := samplefile.WriteActivities(path, rows); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	run.log.Debugf("exported %d activities to %s", len(rows), path)
	return nil
}

func exportRow(a store.Activity) samplefile.ActivityRow {
	row := samplefile.ActivityRow{
		ID:               a.ID,
		FileName:         a.FileName,
		StartTime:        a.StartTime.UnixMilli(),
		DistanceKm:       a.DistanceKm,
		AvgPower:         a.AvgPower,
		AvgHeartRate:     a.AvgHeartRate,
		NormalizedPower:  a.NormalizedPower,
		TSS:              a.TSS,
		IntensityFactor:  a.IntensityFactor,
		EfficiencyFactor: a.EfficiencyFactor,
		CriticalPower:    a.CriticalPower,
		Max5SecPower:     a.Sec5,
		Max1MinPower:     a.Min1,
		Max3MinPower:     a.Min3,
		Max5MinPower:     a.Min5,
		Max10MinPower:    a.Min10,
		Max20MinPower:    a.Min20,
		Max30MinPower:    a.Min30,
		Source:           a.Source,
	}
	if a.DurationS != nil {
		d := int64(*a.DurationS)
		row.DurationS = &d
	}
	return row
}

func (r *Rebuilder) rebuildPowerBests(_ context.Context, run *userRun) error {
	rows, err := r.store.ActivitySummaries(run.user)
	if err != nil {
		return err
	}
	best := analysis.BestOf(rows)
	if best == (analysis.BestPowers{}) {
		if err := r.deleteArtifacts(run.user, store.ArtifactPowerBests); err != nil {
			return err
		}
		return analysis.ErrInsufficientData
	}
	return r.store.SaveArtifact(run.user, store.ArtifactPowerBests, best)
}

func (r *Rebuilder) rebuildPowerTimeSeries(_ context.Context, run *userRun) error {
	rows, err := r.store.ActivitySummaries(run.user)
	if err != nil {
		return err
	}
	series := analysis.PowerTimeSeries(rows)
	var points int
	for _, s := range series {
		points += len(s)
	}
	if points == 0 {
		if err := r.deleteArtifacts(run.user, store.ArtifactPowerTimeSeries); err != nil {
			return err
		}
		return analysis.ErrInsufficientData
	}
	return r.store.SaveArtifact(run.user, store.ArtifactPowerTimeSeries, series)
}

// deleteArtifacts drops artifacts that a rebuild could no longer produce
func (r *Rebuilder) deleteArtifacts(user string, names ...string) error {
	for _, name := range names {
		if err := r.store.DeleteArtifact(user, name); err != nil {
			return fmt.Errorf("deleting %s: %w", name, err)
		}
	}
	return nil
}
