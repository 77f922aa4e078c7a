package service

import (
	"context"
	"sync"

	"ridemetrics/internal/config"
	"ridemetrics/internal/logging"
)

// UserRebuilder rebuilds the derived data of one user
type UserRebuilder interface {
	RebuildUser(ctx context.Context, user string, opts Options) (*RebuildReport, error)
}

// Trigger runs rebuilds in the background. At most one rebuild per user
// runs at a time; requests arriving meanwhile are coalesced into a single
// follow-up run.
type Trigger struct {
	rebuilder UserRebuilder
	defaults  Options
	log       logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]bool
	pending map[string]*Options
	closed  bool
	wg      sync.WaitGroup
}

// NewTrigger creates a trigger whose Schedule uses defaults
func NewTrigger(r UserRebuilder, defaults Options, log logging.Logger) *Trigger {
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		rebuilder: r,
		defaults:  defaults,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]bool),
		pending:   make(map[string]*Options),
	}
}

// Schedule queues a rebuild of user with the default options. It never
// blocks and reports whether the request was accepted.
func (t *Trigger) Schedule(user string) bool {
	return t.ScheduleWith(user, t.defaults)
}

// ScheduleWith queues a rebuild of user with opts
func (t *Trigger) ScheduleWith(user string, opts Options) bool {
	user, err := config.NormalizeUser(user)
	if err != nil {
		t.log.Warnf("not scheduling rebuild: %v", err)
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.running[user] {
		merged := opts
		if p := t.pending[user]; p != nil {
			merged = mergeOptions(*p, opts)
		}
		t.pending[user] = &merged
		return true
	}

	t.running[user] = true
	t.wg.Add(1)
	go t.run(user, opts)
	return true
}

func (t *Trigger) run(user string, opts Options) {
	defer t.wg.Done()
	log := t.log.With("user", user)

	for {
		report, err := t.rebuilder.RebuildUser(t.ctx, user, opts)
		switch {
		case err != nil:
			log.Errorf("background rebuild failed: %v", err)
		case report.Failed():
			log.Warnf("background rebuild finished with failed modules")
		default:
			log.Debugf("background rebuild finished")
		}

		t.mu.Lock()
		next := t.pending[user]
		delete(t.pending, user)
		if next == nil || t.ctx.Err() != nil {
			delete(t.running, user)
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		opts = *next
	}
}

// Wait blocks until every scheduled rebuild has finished
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// Close stops accepting work, cancels running rebuilds and waits for them
func (t *Trigger) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

// mergeOptions combines two pending requests into one run covering both
func mergeOptions(a, b Options) Options {
	out := Options{Selective: a.Selective && b.Selective}
	if len(a.Modules) == 0 || len(b.Modules) == 0 {
		return out
	}

	seen := make(map[string]bool)
	for _, m := range append(append([]string{}, a.Modules...), b.Modules...) {
		if !seen[m] {
			seen[m] = true
			out.Modules = append(out.Modules, m)
		}
	}
	return out
}
