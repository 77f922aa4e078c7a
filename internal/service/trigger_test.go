package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridemetrics/internal/logging"
)

// blockingRebuilder records calls and holds the first one until released
type blockingRebuilder struct {
	mu      sync.Mutex
	calls   []Options
	started chan struct{}
	release chan struct{}
}

func newBlockingRebuilder() *blockingRebuilder {
	return &blockingRebuilder{
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
}

func (b *blockingRebuilder) RebuildUser(ctx context.Context, user string, opts Options) (*RebuildReport, error) {
	b.mu.Lock()
	b.calls = append(b.calls, opts)
	first := len(b.calls) == 1
	b.mu.Unlock()

	b.started <- struct{}{}
	if first {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &RebuildReport{User: user}, nil
}

func (b *blockingRebuilder) Calls() []Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Options(nil), b.calls...)
}

func TestTrigger_CoalescesRequests(t *testing.T) {
	rb := newBlockingRebuilder()
	tr := NewTrigger(rb, Options{Selective: true}, logging.Nop())
	defer tr.Close()

	require.True(t, tr.Schedule("Anna"))
	<-rb.started

	// Both arrive while the first run is busy and collapse into one follow-up
	require.True(t, tr.ScheduleWith("anna", Options{Modules: []string{ModuleZones}, Selective: true}))
	require.True(t, tr.ScheduleWith("anna", Options{Modules: []string{ModuleExport}, Selective: true}))

	close(rb.release)
	tr.Wait()

	calls := rb.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, Options{Selective: true}, calls[0])
	assert.Equal(t, Options{Modules: []string{ModuleZones, ModuleExport}, Selective: true}, calls[1])
}

func TestTrigger_UsersRunIndependently(t *testing.T) {
	rb := newBlockingRebuilder()
	tr := NewTrigger(rb, Options{}, logging.Nop())

	require.True(t, tr.Schedule("anna"))
	require.True(t, tr.Schedule("bob"))
	<-rb.started
	<-rb.started

	close(rb.release)
	tr.Wait()
	assert.Len(t, rb.Calls(), 2)
	tr.Close()
}

func TestTrigger_RejectsInvalidUserAndAfterClose(t *testing.T) {
	rb := newBlockingRebuilder()
	close(rb.release)
	tr := NewTrigger(rb, Options{}, logging.Nop())

	assert.False(t, tr.Schedule("../x"))

	tr.Close()
	assert.False(t, tr.Schedule("anna"))
	assert.Empty(t, rb.Calls())
}

func TestTrigger_CloseCancelsRunning(t *testing.T) {
	rb := newBlockingRebuilder()
	tr := NewTrigger(rb, Options{}, logging.Nop())

	require.True(t, tr.Schedule("anna"))
	<-rb.started
	tr.Close() // returns only once the blocked rebuild saw the cancellation
	assert.Len(t, rb.Calls(), 1)
}

func TestMergeOptions(t *testing.T) {
	tests := []struct {
		name string
		a, b Options
		want Options
	}{
		{
			"union keeps order",
			Options{Modules: []string{ModuleZones, ModuleExport}},
			Options{Modules: []string{ModuleExport, ModuleVO2max}},
			Options{Modules: []string{ModuleZones, ModuleExport, ModuleVO2max}},
		},
		{
			"all modules wins",
			Options{Modules: []string{ModuleZones}, Selective: true},
			Options{Selective: true},
			Options{Selective: true},
		},
		{
			"full rebuild wins over selective",
			Options{Selective: true},
			Options{},
			Options{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeOptions(tt.a, tt.b))
		})
	}
}
