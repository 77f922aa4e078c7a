package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ridemetrics/internal/cache"
	"ridemetrics/internal/config"
	"ridemetrics/internal/logging"
	"ridemetrics/internal/service"
	"ridemetrics/internal/store"
)

const usage = `usage: ridemetrics [-config path] <command> [flags]

commands:
  import       -user U file...      import .fit or .parquet sample files
  rebuild      [-user U] [-modules a,b] [-selective]
                                    recompute derived metrics
  backfill-cp  -user U              recompute per-activity critical power
  settings     -user U [-ftp W] [-weight KG] [-hr-max BPM] [-hr-rest BPM]
                                    show or change a user's thresholds
  report       -user U              print a summary to the terminal
  serve                             serve the HTTP API
  strava-auth  -user U              connect a Strava account
  strava-sync  -user U              download new rides from Strava
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("ridemetrics", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := global.String("config", "", "config file (default ~/.ridemetrics/config.json)")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return nil
	}
	name, rest := global.Arg(0), global.Args()[1:]

	cmd, ok := commands[name]
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd(ctx, a, rest)
}

// loadConfig reads the config file. A missing file is replaced by an
// example and the defaults are used for this run.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrNoConfig) {
		if err := config.CreateExample(path); err != nil {
			return nil, fmt.Errorf("creating example config: %w", err)
		}
		configDir, _ := config.GetConfigDir()
		fmt.Fprintf(os.Stderr, "No config file found. Wrote an example config to %s/config.json; using defaults.\n", configDir)
		d := config.DefaultConfig()
		cfg = &d
	} else if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app holds the wired services shared by every command
type app struct {
	cfg       *config.Config
	log       logging.Logger
	store     *store.Store
	cache     cache.ArtifactCache
	settings  *config.SettingsStore
	rebuilder *service.Rebuilder
	trigger   *service.Trigger
	importer  *service.Importer
	query     *service.QueryService
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	c := newCache(ctx, cfg, log)
	settings := config.NewSettingsStore(cfg.SettingsDir())
	rebuilder := service.NewRebuilder(st, settings, cfg, c, log)
	trigger := service.NewTrigger(rebuilder, service.Options{Selective: true}, log)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     st,
		cache:     c,
		settings:  settings,
		rebuilder: rebuilder,
		trigger:   trigger,
		importer:  service.NewImporter(st, settings, cfg, trigger, log),
		query:     service.NewQueryService(st, settings, c, log),
	}, nil
}

// newCache connects to Redis when configured and falls back to an
// in-process cache otherwise
func newCache(ctx context.Context, cfg *config.Config, log logging.Logger) cache.ArtifactCache {
	if cfg.Redis.Addr == "" {
		return cache.NewMemory(cfg.CacheTTL())
	}
	rc, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.CacheTTL(),
	})
	if err != nil {
		log.Warnf("redis unavailable, using in-memory cache: %v", err)
		return cache.NewMemory(cfg.CacheTTL())
	}
	log.Infof("caching artifacts in redis at %s", cfg.Redis.Addr)
	return rc
}

// Close cancels background rebuilds, then releases the cache and database
func (a *app) Close() {
	a.trigger.Close()
	if err := a.cache.Close(); err != nil {
		a.log.Warnf("closing cache: %v", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warnf("closing database: %v", err)
	}
}
