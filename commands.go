package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ridemetrics/internal/api"
	"ridemetrics/internal/auth"
	"ridemetrics/internal/config"
	"ridemetrics/internal/report"
	"ridemetrics/internal/service"
	"ridemetrics/internal/store"
	"ridemetrics/internal/strava"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"import":      importCmd,
	"rebuild":     rebuildCmd,
	"backfill-cp": backfillCPCmd,
	"settings":    settingsCmd,
	"report":      reportCmd,
	"serve":       serveCmd,
	"strava-auth": stravaAuthCmd,
	"strava-sync": stravaSyncCmd,
}

// newFlags returns a flag set for a command with the common -user flag
func newFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	user := fs.String("user", "", "user id")
	return fs, user
}

// requireUser checks that -user was given and normalizes it in place
func requireUser(user *string) error {
	if *user == "" {
		return errors.New("-user is required")
	}
	u, err := config.NormalizeUser(*user)
	if err != nil {
		return err
	}
	*user = u
	return nil
}

func importCmd(ctx context.Context, a *app, args []string) error {
	fs, user := newFlags("import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(user); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no files given")
	}

	rep, err := a.importer.Import(ctx, *user, fs.Args())
	if err != nil {
		return err
	}
	for _, r := range rep.Results {
		if r.Err != nil {
			fmt.Printf("  %-40s %s: %v\n", r.File, r.Outcome, r.Err)
			continue
		}
		fmt.Printf("  %-40s %s\n", r.File, r.Outcome)
	}
	fmt.Printf("Imported %d of %d files\n", rep.Imported, len(rep.Results))

	if rep.Imported > 0 {
		fmt.Println("Rebuilding derived metrics...")
		a.trigger.Wait()
	}
	return nil
}

func rebuildCmd(ctx context.Context, a *app, args []string) error {
	fs, user := newFlags("rebuild")
	modules := fs.String("modules", "", "comma separated modules (default all)")
	selective := fs.Bool("selective", false, "skip users whose sample files did not change")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := service.Options{Selective: *selective}
	if *modules != "" {
		opts.Modules = strings.Split(*modules, ",")
	}
	if err := service.ValidateModules(opts.Modules); err != nil {
		return err
	}

	if *user != "" {
		rep, err := a.rebuilder.RebuildUser(ctx, *user, opts)
		if err != nil {
			return err
		}
		printRebuild(rep)
		return failedErr(rep)
	}

	reports, err := a.rebuilder.RebuildAll(ctx, opts)
	for _, rep := range reports {
		printRebuild(rep)
	}
	if err != nil {
		return err
	}
	for _, rep := range reports {
		if rep.Failed() {
			return errors.New("rebuild finished with failures")
		}
	}
	return nil
}

func backfillCPCmd(ctx context.Context, a *app, args []string) error {
	fs, user := newFlags("backfill-cp")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(user); err != nil {
		return err
	}

	rep, err := a.rebuilder.RebuildUser(ctx, *user, service.Options{
		Modules: []string{service.ModuleCPPerActivity},
	})
	if err != nil {
		return err
	}
	printRebuild(rep)
	return failedErr(rep)
}

func printRebuild(rep *service.RebuildReport) {
	if rep.Err != nil {
		fmt.Printf("%s: %v\n", rep.User, rep.Err)
		return
	}
	if rep.Unchanged {
		fmt.Printf("%s: unchanged\n", rep.User)
		return
	}
	fmt.Printf("%s: rebuilt in %s", rep.User, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	if rep.DuplicatesRemoved > 0 {
		fmt.Printf(" (%d duplicates removed)", rep.DuplicatesRemoved)
	}
	fmt.Println()
	for _, m := range rep.Modules {
		line := fmt.Sprintf("  %-20s %-8s %s", m.Module, m.Status, m.Duration.Round(time.Millisecond))
		if m.Error != "" {
			line += "  " + m.Error
		}
		fmt.Println(line)
	}
}

func failedErr(rep *service.RebuildReport) error {
	if rep.Failed() {
		return fmt.Errorf("rebuild of %s finished with failures", rep.User)
	}
	return nil
}

func settingsCmd(_ context.Context, a *app, args []string) error {
	fs, user := newFlags("settings")
	ftp := fs.Float64("ftp", 0, "functional threshold power in watts")
	weight := fs.Float64("weight", 0, "body weight in kg")
	hrMax := fs.Float64("hr-max", 0, "maximum heart rate in bpm")
	hrRest := fs.Float64("hr-rest", 0, "resting heart rate in bpm")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(user); err != nil {
		return err
	}

	s, err := a.settings.Load(*user)
	if err != nil {
		return err
	}

	changed := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ftp":
			s.FTP = *ftp
		case "weight":
			s.Weight = *weight
		case "hr-max":
			s.HRMax = *hrMax
		case "hr-rest":
			s.HRRest = *hrRest
		default:
			return
		}
		changed = true
	})

	if changed {
		if err := a.settings.Save(*user, s); err != nil {
			return err
		}
		// thresholds feed every derived metric
		a.trigger.ScheduleWith(*user, service.Options{})
		defer a.trigger.Wait()
	}

	fmt.Printf("ftp:     %.0f W\n", s.FTP)
	fmt.Printf("weight:  %.1f kg\n", s.Weight)
	fmt.Printf("hr_max:  %.0f bpm\n", s.HRMax)
	fmt.Printf("hr_rest: %.0f bpm\n", s.HRRest)
	return nil
}

func reportCmd(ctx context.Context, a *app, args []string) error {
	fs, user := newFlags("report")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(user); err != nil {
		return err
	}

	summary, err := a.query.Summary(ctx, *user)
	if err != nil {
		return err
	}
	fmt.Println(report.Render(summary))
	return nil
}

func serveCmd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.HTTP.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return api.NewServer(a.query, a.trigger, a.log).Run(ctx, *addr)
}

func stravaAuthCmd(ctx context.Context, a *app, args []string) error {
	fs, user := newFlags("strava-auth")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(user); err != nil {
		return err
	}
	if err := a.cfg.ValidateStrava(); err != nil {
		return err
	}

	result, err := auth.Connect(ctx, auth.NewOAuthConfig(a.cfg.Strava), a.store, *user, os.Stdout)
	if err != nil {
		return fmt.Errorf("authentication: %w", err)
	}
	fmt.Printf("\nSuccessfully authenticated as athlete %d!\n", result.AthleteID)
	return nil
}

func stravaSyncCmd(ctx context.Context, a *app, args []string) error {
	fs, user := newFlags("strava-sync")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(user); err != nil {
		return err
	}
	if err := a.cfg.ValidateStrava(); err != nil {
		return err
	}

	ts, err := auth.UserTokenSource(auth.NewOAuthConfig(a.cfg.Strava), a.store, *user)
	if errors.Is(err, store.ErrNoAuth) {
		return fmt.Errorf("no Strava account connected for %s, run strava-auth first", *user)
	}
	if err != nil {
		return err
	}

	client := strava.NewClient(ts)
	sync := service.NewStravaSync(client, a.store, a.importer, a.cfg, a.log)

	progress := make(chan service.SyncProgress)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			if p.Total > 0 {
				fmt.Printf("\r%-10s %d/%d %-30s", p.Phase, p.Completed, p.Total, p.Current)
			} else {
				fmt.Printf("\r%-10s %d %-30s", p.Phase, p.Completed, p.Current)
			}
		}
		fmt.Println()
	}()

	result, err := sync.Sync(ctx, *user, progress)
	<-done
	if err != nil {
		return err
	}

	fmt.Printf("Fetched %s activities, %d rides, %d already imported, %d new\n",
		humanize.Comma(int64(result.ActivitiesFetched)), result.Rides, result.AlreadyImported, result.StreamsFetched)
	for _, e := range result.Errors {
		fmt.Printf("  %v\n", e)
	}
	short, daily := client.RateLimitStatus()
	fmt.Printf("Strava rate limit remaining: %d (15 min), %d (daily)\n", short, daily)

	if result.Import != nil && result.Import.Imported > 0 {
		fmt.Println("Rebuilding derived metrics...")
		a.trigger.Wait()
	}
	return nil
}
