package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/clock"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/progress"
	"github.com/stemsi/speaking-test/internal/storage"
)

// RegistryConfig is the configuration for a Registry.
type RegistryConfig struct {
	KV            storage.KV
	Questions     model.QuestionReference
	Clock         clock.Clock
	Encoder       Encoder
	Submitter     Submitter
	Assessor      Assessor
	Policy        config.TruncatedCapturePolicy
	SettleTimeout time.Duration
	// IdleTimeout retires engines nobody has used for that long. 0 keeps them forever.
	IdleTimeout time.Duration
	Logger      zerolog.Logger
}

func (c *RegistryConfig) defaults() error {
	if c.KV == nil {
		return errors.New("kv store is required")
	}
	if c.Assessor == nil {
		return errors.New("assessor is required")
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	return nil
}

// slot is one candidate's map entry. ready is closed once engine or err is set.
type slot struct {
	ready  chan struct{}
	engine *Engine
	err    error
}

// Registry lazily creates one engine per candidate and owns their loops.
type Registry struct {
	cfg RegistryConfig
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// NewRegistry returns an empty registry. With an IdleTimeout it also starts
// sweeping idle engines until Close.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid registry configuration: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "session-registry").Logger(),
		ctx:    ctx,
		cancel: cancel,
		slots:  make(map[string]*slot),
	}
	if cfg.IdleTimeout > 0 {
		r.wg.Add(1)
		go r.sweepLoop()
	}
	return r, nil
}

// Get returns the candidate's engine, loading its progress on first use.
// Loading happens outside the registry lock; concurrent callers for the same
// candidate wait for the one load. A corrupt stored document is replaced by a
// fresh test.
func (r *Registry) Get(ctx context.Context, candidateID string) (*Engine, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		s, ok := r.slots[candidateID]
		if !ok {
			s = &slot{ready: make(chan struct{})}
			r.slots[candidateID] = s
			r.mu.Unlock()
			r.load(ctx, candidateID, s)
			return s.engine, s.err
		}
		r.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.err != nil {
			return nil, s.err
		}
		select {
		case <-s.engine.Done():
			// Retired between the sweep and the map cleanup.
			r.remove(candidateID, s)
		default:
			return s.engine, nil
		}
	}
}

func (r *Registry) load(ctx context.Context, candidateID string, s *slot) {
	defer close(s.ready)

	e, err := r.newEngine(ctx, candidateID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil && r.closed {
		err = ErrClosed
	}
	if err != nil {
		delete(r.slots, candidateID)
		s.err = err
		return
	}

	s.engine = e
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := e.Run(r.ctx); err != nil {
			r.log.Error().Err(err).Str("candidate_id", candidateID).Msg("Engine stopped")
		}
	}()
	r.log.Info().Str("candidate_id", candidateID).Msg("Engine started")
}

func (r *Registry) newEngine(ctx context.Context, candidateID string) (*Engine, error) {
	key := config.CacheKey.ProgressKey(candidateID)
	store, err := progress.Load(ctx, r.cfg.KV, key, r.cfg.Questions)
	switch {
	case errors.Is(err, progress.ErrCorrupt):
		r.log.Error().Err(err).Str("candidate_id", candidateID).Msg("Stored progress corrupt, starting fresh")
		store = progress.New(r.cfg.KV, key, r.cfg.Questions)
	case err != nil:
		return nil, fmt.Errorf("load progress: %w", err)
	}

	e, err := NewEngine(Options{
		CandidateID:   candidateID,
		Store:         store,
		Clock:         r.cfg.Clock,
		Encoder:       r.cfg.Encoder,
		Submitter:     r.cfg.Submitter,
		Assessor:      r.cfg.Assessor,
		Policy:        r.cfg.Policy,
		SettleTimeout: r.cfg.SettleTimeout,
		Logger:        r.cfg.Logger.With().Str("component", "session-engine").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return e, nil
}

// remove deletes the candidate's entry if it is still s.
func (r *Registry) remove(candidateID string, s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[candidateID] == s {
		delete(r.slots, candidateID)
	}
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()
	ticker := r.cfg.Clock.NewTicker(r.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C():
			r.sweep(r.ctx)
		}
	}
}

// sweep retires engines idle for IdleTimeout and returns how many it retired.
func (r *Registry) sweep(ctx context.Context) int {
	r.mu.Lock()
	candidates := make(map[string]*slot, len(r.slots))
	for id, s := range r.slots {
		if s.engine != nil {
			candidates[id] = s
		}
	}
	r.mu.Unlock()

	retired := 0
	for id, s := range candidates {
		ok, err := s.engine.Retire(ctx, r.cfg.IdleTimeout)
		if err != nil && !errors.Is(err, ErrClosed) {
			return retired
		}
		if !ok && err == nil {
			continue
		}
		r.remove(id, s)
		if ok {
			retired++
			r.log.Info().Str("candidate_id", id).Msg("Idle engine retired")
		}
	}
	return retired
}

// Len reports how many engines are running or loading.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Close stops every engine and waits for their loops to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.log.Info().Msg("All engines stopped")
}
