package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/clock"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, kv storage.KV) *Registry {
	t.Helper()
	return newIdleRegistry(t, kv, clock.NewFake(time.Now()), 0)
}

func newIdleRegistry(t *testing.T, kv storage.KV, clk clock.Clock, idle time.Duration) *Registry {
	t.Helper()
	r, err := NewRegistry(RegistryConfig{
		KV:          kv,
		Questions:   testRef,
		Clock:       clk,
		Assessor:    newGateAssessor(),
		IdleTimeout: idle,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return r
}

// gatedKV blocks Get for one key until released.
type gatedKV struct {
	*storage.MemoryKV
	key     string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) Get(ctx context.Context, key string) ([]byte, error) {
	if key == g.key {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.MemoryKV.Get(ctx, key)
}

func TestRegistryRequiresDependencies(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{Assessor: newGateAssessor()})
	assert.Error(t, err)
	_, err = NewRegistry(RegistryConfig{KV: storage.NewMemoryKV()})
	assert.Error(t, err)
}

func TestRegistryReusesEnginePerCandidate(t *testing.T) {
	r := newTestRegistry(t, storage.NewMemoryKV())
	defer r.Close()
	ctx := context.Background()

	a, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	again, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	b, err := r.Get(ctx, "bob")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryLoadsStoredProgress(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()

	first := newTestRegistry(t, kv)
	e, err := first.Get(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, e.SetNotes(ctx, model.Part1, "hometown"))
	first.Close()

	second := newTestRegistry(t, kv)
	defer second.Close()
	e, err = second.Get(ctx, "alice")
	require.NoError(t, err)
	v, err := e.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hometown", v.Notes[model.Part1])
}

func TestRegistryStartsFreshOnCorruptProgress(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, config.CacheKey.ProgressKey("alice"), []byte("{not json")))

	r := newTestRegistry(t, kv)
	defer r.Close()
	e, err := r.Get(ctx, "alice")
	require.NoError(t, err)

	v, err := e.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StartPosition, v.Position)
}

func TestRegistryClose(t *testing.T) {
	r := newTestRegistry(t, storage.NewMemoryKV())
	ctx := context.Background()

	e, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	r.Close()

	<-e.Done()
	_, err = e.View(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Get(ctx, "bob")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistryLoadsOutsideTheLock(t *testing.T) {
	kv := &gatedKV{
		MemoryKV: storage.NewMemoryKV(),
		key:      config.CacheKey.ProgressKey("slow"),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	r := newTestRegistry(t, kv)
	defer r.Close()
	ctx := context.Background()

	type result struct {
		e   *Engine
		err error
	}
	results := make(chan result, 2)
	go func() {
		e, err := r.Get(ctx, "slow")
		results <- result{e, err}
	}()
	<-kv.entered
	go func() {
		e, err := r.Get(ctx, "slow")
		results <- result{e, err}
	}()

	// Another candidate is served while the slow load is still blocked.
	fast, err := r.Get(ctx, "fast")
	require.NoError(t, err)
	require.NotNil(t, fast)
	assert.Len(t, results, 0)

	close(kv.release)
	first, second := <-results, <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Same(t, first.e, second.e)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryRetiresIdleEngines(t *testing.T) {
	kv := storage.NewMemoryKV()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	r := newIdleRegistry(t, kv, clk, 10*time.Minute)
	defer r.Close()
	ctx := context.Background()

	e, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, e.SetNotes(ctx, model.Part1, "hometown"))
	client := &fakeClient{}
	require.NoError(t, e.Attach(ctx, client))

	clk.Advance(time.Hour)
	assert.Zero(t, r.sweep(ctx), "an attached engine is in use")

	require.NoError(t, e.Detach(ctx, client))
	assert.Zero(t, r.sweep(ctx), "the detach itself was recent activity")

	clk.Advance(11 * time.Minute)
	assert.Equal(t, 1, r.sweep(ctx))
	<-e.Done()
	assert.Zero(t, r.Len())

	again, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, e, again)
	v, err := again.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hometown", v.Notes[model.Part1])
}

func TestRegistryKeepsEngineWithCaptureInFlight(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	r := newIdleRegistry(t, storage.NewMemoryKV(), clk, 10*time.Minute)
	defer r.Close()
	ctx := context.Background()

	e, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	_, _, err = e.CaptureStarted(ctx)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	assert.Zero(t, r.sweep(ctx))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReplacesRetiredEngine(t *testing.T) {
	r := newTestRegistry(t, storage.NewMemoryKV())
	defer r.Close()
	ctx := context.Background()

	e, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	retired, err := e.Retire(ctx, 0)
	require.NoError(t, err)
	require.True(t, retired)
	<-e.Done()

	again, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, e, again)
	_, err = again.View(ctx)
	assert.NoError(t, err)
}
