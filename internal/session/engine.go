package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/clock"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/progress"
)

// ErrClosed is returned for calls on an engine whose loop has stopped.
var ErrClosed = errors.New("session engine closed")

const tickInterval = time.Second

// Options configure an Engine.
type Options struct {
	CandidateID   string
	Store         *progress.Store
	Clock         clock.Clock
	Encoder       Encoder
	Submitter     Submitter
	Assessor      Assessor
	Policy        config.TruncatedCapturePolicy
	SettleTimeout time.Duration
	Logger        zerolog.Logger
}

func (o *Options) defaults() {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Encoder == nil {
		o.Encoder = Base64Encoder{}
	}
	if o.Submitter == nil {
		o.Submitter = noopSubmitter{}
	}
	if o.Policy == "" {
		o.Policy = config.TruncatedCapturePersist
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = 5 * time.Second
	}
}

type captureState int

const (
	captureRecording captureState = iota
	captureSettling
)

type capture struct {
	sess      CaptureSession
	state     captureState
	truncated bool
}

type request struct {
	ctx     context.Context
	fn      func(ctx context.Context)
	done    chan struct{}
	passive bool
}

type assessResult struct {
	gen uint64
	err error
}

// Engine runs one candidate's test. All state is owned by the Run loop;
// exported methods hand work to it and wait for the reply.
type Engine struct {
	opts   Options
	log    zerolog.Logger
	store  *progress.Store
	bridge *Bridge
	timer  *Timer

	inbox      chan request
	assessDone chan assessResult
	done       chan struct{}

	// Loop-owned.
	client     Client
	phase      Phase
	lastID     CaptureID
	capture    *capture
	ticker     clock.Ticker
	settleC    <-chan time.Time
	captureErr string
	assessGen  uint64
	runCtx     context.Context
	lastActive time.Time
	retired    bool
}

// NewEngine builds an engine around a loaded store. Call Run to start it.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("session engine requires a progress store")
	}
	if opts.Assessor == nil {
		return nil, errors.New("session engine requires an assessor")
	}
	opts.defaults()

	log := opts.Logger.With().Str("candidate_id", opts.CandidateID).Logger()
	e := &Engine{
		opts:       opts,
		log:        log,
		store:      opts.Store,
		bridge:     NewBridge(opts.Store, opts.Encoder, opts.Clock.Now, log),
		timer:      NewTimer(opts.Store.Position().Part.TimeLimit()),
		inbox:      make(chan request),
		assessDone: make(chan assessResult),
		done:       make(chan struct{}),
		client:     detachedClient{},
		phase:      PhaseAnswering,
		// IDs from an earlier process may still be in flight on a client.
		lastID:     CaptureID(opts.Store.Snapshot().MaxCaptureID()),
		lastActive: opts.Clock.Now(),
	}

	switch {
	case e.store.Completed():
		e.phase = PhaseFinished
	case e.store.AssessmentStatus() == model.AssessmentPending:
		e.phase = PhaseAssessmentPending
	}
	e.store.SetTimer(e.timer.Remaining())
	return e, nil
}

// Run processes requests, ticks and completions until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	e.runCtx = ctx

	if e.phase == PhaseAssessmentPending {
		e.log.Info().Msg("Resuming pending assessment")
		e.startAssessment()
	}

	for {
		var tickC <-chan time.Time
		if e.ticker != nil {
			tickC = e.ticker.C()
		}

		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case req := <-e.inbox:
			if !req.passive {
				e.lastActive = e.opts.Clock.Now()
			}
			req.fn(req.ctx)
			close(req.done)
			if e.retired {
				e.shutdown()
				return nil
			}
		case <-tickC:
			e.onTick()
		case <-e.settleC:
			e.onSettleTimeout()
		case res := <-e.assessDone:
			e.onAssessed(ctx, res)
		}
	}
}

// Done is closed once the loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) exec(ctx context.Context, fn func(ctx context.Context)) error {
	return e.send(ctx, request{ctx: ctx, fn: fn, done: make(chan struct{})})
}

func (e *Engine) send(ctx context.Context, req request) error {
	select {
	case e.inbox <- req:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-req.done
	return nil
}

// dispatch runs fn on the loop and relays the warning it produced to the client.
func (e *Engine) dispatch(ctx context.Context, fn func(ctx context.Context) (*Warning, error)) (*Warning, error) {
	var (
		warn *Warning
		err  error
	)
	if execErr := e.exec(ctx, func(ctx context.Context) {
		warn, err = fn(ctx)
		if warn != nil {
			e.client.Warn(*warn)
		}
	}); execErr != nil {
		return nil, execErr
	}
	return warn, err
}

// Retire stops the loop if the engine has had no client, no capture and no
// request for at least idleFor. Everything it holds is already durable, so
// the next Get simply loads a new engine.
func (e *Engine) Retire(ctx context.Context, idleFor time.Duration) (bool, error) {
	var retired bool
	err := e.send(ctx, request{
		ctx:     ctx,
		passive: true,
		done:    make(chan struct{}),
		fn: func(context.Context) {
			if _, detached := e.client.(detachedClient); !detached || e.capture != nil {
				return
			}
			if e.phase != PhaseAnswering && e.phase != PhaseFinished {
				return
			}
			if e.opts.Clock.Now().Sub(e.lastActive) < idleFor {
				return
			}
			e.retired = true
			retired = true
		},
	})
	return retired, err
}

// Attach makes c the engine's client and pushes the current view to it.
func (e *Engine) Attach(ctx context.Context, c Client) error {
	return e.exec(ctx, func(context.Context) {
		e.client = c
		c.State(e.view())
	})
}

// Detach drops c if it is still the attached client. A capture still
// recording on it can never deliver its artifact, so it is abandoned.
func (e *Engine) Detach(ctx context.Context, c Client) error {
	return e.exec(ctx, func(context.Context) {
		if e.client != c {
			return
		}
		e.client = detachedClient{}
		if e.capture != nil {
			e.log.Warn().Uint64("capture_id", uint64(e.capture.sess.ID)).Msg("Client detached during capture")
			e.abandonCapture()
		}
	})
}

// StartRecording asks the client to start capturing for the current question.
func (e *Engine) StartRecording(ctx context.Context) (*Warning, error) {
	return e.dispatch(ctx, func(context.Context) (*Warning, error) {
		if w := e.inputGuard(); w != nil {
			return w, nil
		}
		if e.captureErr != "" {
			return warnCaptureUnavailable(e.captureErr), nil
		}
		if e.capture != nil {
			if e.capture.state == captureSettling {
				return warnCaptureSettling(), nil
			}
			return nil, nil
		}
		if err := e.client.Start(); err != nil {
			e.log.Warn().Err(err).Msg("Capture start failed")
			return warnCaptureUnavailable(err.Error()), nil
		}
		return nil, nil
	})
}

// StopRecording asks the client to stop the running capture.
func (e *Engine) StopRecording(ctx context.Context) (*Warning, error) {
	return e.dispatch(ctx, func(context.Context) (*Warning, error) {
		if e.capture == nil || e.capture.state != captureRecording {
			return nil, nil
		}
		e.requestStop(false)
		return nil, nil
	})
}

// CaptureStarted is the capture primitive's start hook. It opens a capture
// session bound to the current question and starts the countdown.
func (e *Engine) CaptureStarted(ctx context.Context) (CaptureID, *Warning, error) {
	var id CaptureID
	warn, err := e.dispatch(ctx, func(context.Context) (*Warning, error) {
		if e.capture != nil {
			if e.capture.state == captureRecording {
				id = e.capture.sess.ID
				return nil, nil
			}
			e.stopClient()
			return warnCaptureSettling(), nil
		}
		if w := e.inputGuard(); w != nil {
			e.stopClient()
			return w, nil
		}

		e.lastID++
		e.timer.Start(e.lastID)
		e.capture = &capture{
			sess: CaptureSession{
				ID:       e.lastID,
				Position: e.store.Position(),
				Limit:    e.timer.Limit(),
			},
			state: captureRecording,
		}
		e.captureErr = ""
		e.ticker = e.opts.Clock.NewTicker(tickInterval)
		e.store.SetTimer(e.timer.Remaining())
		e.store.SetRecordingInProgress(true)
		id = e.lastID

		e.log.Info().
			Uint64("capture_id", uint64(id)).
			Int("part", int(e.capture.sess.Position.Part)).
			Int("question_index", e.capture.sess.Position.QuestionIndex).
			Int("remaining", e.timer.Remaining()).
			Msg("Capture started")
		e.client.CaptureStarted(id)
		e.client.Timer(e.timer.Remaining())
		e.client.State(e.view())
		return nil, nil
	})
	return id, warn, err
}

// CaptureStopped is the capture primitive's stop hook carrying the artifact.
func (e *Engine) CaptureStopped(ctx context.Context, a Artifact) (*Warning, error) {
	return e.dispatch(ctx, func(ctx context.Context) (*Warning, error) {
		return e.finishCapture(ctx, a, "stop_hook"), nil
	})
}

// ArtifactReady is the polling observation of a finished artifact. It is
// reconciled with CaptureStopped so each capture commits once.
func (e *Engine) ArtifactReady(ctx context.Context, a Artifact) (*Warning, error) {
	return e.dispatch(ctx, func(ctx context.Context) (*Warning, error) {
		return e.finishCapture(ctx, a, "artifact_poll"), nil
	})
}

// CaptureError records that the capture primitive failed. Recording stays
// disabled until CaptureReady.
func (e *Engine) CaptureError(ctx context.Context, reason string) (*Warning, error) {
	return e.dispatch(ctx, func(context.Context) (*Warning, error) {
		if reason == "" {
			reason = "unknown error"
		}
		e.captureErr = reason
		e.log.Warn().Str("reason", reason).Msg("Capture error")
		if e.capture != nil {
			e.abandonCapture()
		}
		e.client.State(e.view())
		return warnCaptureUnavailable(reason), nil
	})
}

// CaptureReady clears a previous capture error.
func (e *Engine) CaptureReady(ctx context.Context) error {
	return e.exec(ctx, func(context.Context) {
		if e.captureErr == "" {
			return
		}
		e.captureErr = ""
		e.client.State(e.view())
	})
}

// Next submits the current answer and moves forward.
func (e *Engine) Next(ctx context.Context) (*Warning, error) {
	return e.dispatch(ctx, e.next)
}

func (e *Engine) next(ctx context.Context) (*Warning, error) {
	if w := e.inputGuard(); w != nil {
		return w, nil
	}
	if e.capture != nil {
		if e.capture.state == captureSettling {
			return warnCaptureSettling(), nil
		}
		return warnRecordingActive(), nil
	}

	pos := e.store.Position()
	ref := e.store.Questions()
	entry, ok := e.store.Recording(pos.Part, pos.QuestionIndex)
	if !ok {
		return warnMissingRecording(), nil
	}
	last := pos.QuestionIndex >= ref.LastIndex(pos.Part)
	if last && !e.store.IsPartComplete(pos.Part) {
		return warnIncompletePart(int(pos.Part), pos.Part == model.Part3), nil
	}

	if err := e.opts.Submitter.Submit(ctx, e.opts.CandidateID, pos, entry); err != nil {
		e.log.Error().Err(err).
			Int("part", int(pos.Part)).
			Int("question_index", pos.QuestionIndex).
			Msg("Submit recording failed")
	}

	switch {
	case !last:
		return e.moveTo(ctx, model.Position{Part: pos.Part, QuestionIndex: pos.QuestionIndex + 1})
	case pos.Part == model.Part1:
		return e.moveTo(ctx, model.Position{Part: model.Part2, QuestionIndex: 0})
	case pos.Part == model.Part2:
		return e.beginAssessment(ctx)
	default:
		return e.finish(ctx)
	}
}

// Previous moves back one question, or to the previous part's last question.
func (e *Engine) Previous(ctx context.Context) (*Warning, error) {
	return e.dispatch(ctx, func(ctx context.Context) (*Warning, error) {
		if w := e.inputGuard(); w != nil {
			return w, nil
		}
		pos := e.store.Position()
		switch {
		case pos.QuestionIndex > 0:
			return e.moveTo(ctx, model.Position{Part: pos.Part, QuestionIndex: pos.QuestionIndex - 1})
		case pos.Part > model.Part1:
			prev := pos.Part - 1
			return e.moveTo(ctx, model.Position{Part: prev, QuestionIndex: e.store.Questions().LastIndex(prev)})
		default:
			return nil, nil
		}
	})
}

// EnterPart handles route entry into part. A different part starts at its
// first question; later parts require the earlier ones to be complete.
func (e *Engine) EnterPart(ctx context.Context, part model.Part) (*Warning, error) {
	if !part.Valid() {
		return nil, fmt.Errorf("%w: %d", progress.ErrInvalidPart, part)
	}
	return e.dispatch(ctx, func(ctx context.Context) (*Warning, error) {
		if w := e.inputGuard(); w != nil {
			return w, nil
		}
		pos := e.store.Position()
		if part == pos.Part {
			if e.capture == nil {
				e.resetTimer(part)
				e.client.State(e.view())
			}
			return nil, nil
		}
		for _, p := range model.Parts {
			if p >= part {
				break
			}
			if !e.store.IsPartComplete(p) {
				return warnIncompletePart(int(p), false), nil
			}
		}
		if part == model.Part3 && e.store.AssessmentStatus() != model.AssessmentCompleted {
			return warnAssessmentNeeded(), nil
		}
		return e.moveTo(ctx, model.Position{Part: part, QuestionIndex: 0})
	})
}

// SetNotes replaces a part's notes.
func (e *Engine) SetNotes(ctx context.Context, part model.Part, notes string) error {
	var err error
	if execErr := e.exec(ctx, func(ctx context.Context) {
		err = e.store.SetNotes(ctx, part, notes)
	}); execErr != nil {
		return execErr
	}
	return err
}

// Reset starts the test over. Any capture in flight is discarded.
func (e *Engine) Reset(ctx context.Context) error {
	var err error
	if execErr := e.exec(ctx, func(ctx context.Context) {
		if err = e.store.ResetTest(ctx); err != nil {
			e.log.Error().Err(err).Msg("Reset test failed")
			e.client.Warn(*warnStorageFailure())
			return
		}
		if e.capture != nil {
			e.log.Info().Uint64("capture_id", uint64(e.capture.sess.ID)).Msg("Capture discarded by reset")
			e.dropCapture()
			if clearErr := e.client.Clear(); clearErr != nil {
				e.log.Warn().Err(clearErr).Msg("Capture clear failed")
			}
		}
		e.assessGen++
		e.phase = PhaseAnswering
		e.resetTimer(model.StartPosition.Part)
		e.log.Info().Msg("Test reset")
		e.client.GoTo(model.StartPosition)
		e.client.State(e.view())
	}); execErr != nil {
		return execErr
	}
	return err
}

// Exit leaves the test for the home route. A running capture is stopped and
// kept for the question it belongs to.
func (e *Engine) Exit(ctx context.Context) error {
	return e.exec(ctx, func(context.Context) {
		if e.capture != nil && e.capture.state == captureRecording {
			e.requestStop(false)
		}
		e.client.GoToHome()
	})
}

// View returns the current client view.
func (e *Engine) View(ctx context.Context) (View, error) {
	var v View
	err := e.exec(ctx, func(context.Context) { v = e.view() })
	return v, err
}

// Snapshot returns the progress store snapshot, audio included.
func (e *Engine) Snapshot(ctx context.Context) (progress.Snapshot, error) {
	var s progress.Snapshot
	err := e.exec(ctx, func(context.Context) { s = e.store.Snapshot() })
	return s, err
}

// Recording returns the committed entry for (part, index).
func (e *Engine) Recording(ctx context.Context, part model.Part, index int) (model.RecordingEntry, bool, error) {
	var (
		entry model.RecordingEntry
		ok    bool
	)
	err := e.exec(ctx, func(context.Context) { entry, ok = e.store.Recording(part, index) })
	return entry, ok, err
}

// inputGuard refuses input while assessing or after the test finished.
func (e *Engine) inputGuard() *Warning {
	switch e.phase {
	case PhaseAssessmentPending, PhaseAdvancing:
		return warnAssessmentPending()
	case PhaseFinished:
		return warnTestFinished()
	}
	return nil
}

// moveTo persists the new position, cuts any capture short under its own
// identity and resets the timer for the new question.
func (e *Engine) moveTo(ctx context.Context, pos model.Position) (*Warning, error) {
	if err := e.store.SetPosition(ctx, pos); err != nil {
		e.log.Error().Err(err).Int("part", int(pos.Part)).Int("question_index", pos.QuestionIndex).Msg("Move failed")
		if errors.Is(err, progress.ErrInvalidPosition) {
			return nil, err
		}
		return warnStorageFailure(), nil
	}

	if e.capture != nil {
		if e.capture.state == captureRecording {
			e.requestStop(true)
		} else {
			e.capture.truncated = true
		}
	}

	e.resetTimer(pos.Part)
	e.log.Debug().Int("part", int(pos.Part)).Int("question_index", pos.QuestionIndex).Msg("Moved")
	e.client.GoTo(pos)
	e.client.State(e.view())
	return nil, nil
}

func (e *Engine) resetTimer(part model.Part) {
	e.timer.Reset(part.TimeLimit())
	e.store.SetTimer(e.timer.Remaining())
	e.client.Timer(e.timer.Remaining())
}

func (e *Engine) beginAssessment(ctx context.Context) (*Warning, error) {
	if err := e.store.SetAssessmentStatus(ctx, model.AssessmentPending); err != nil {
		e.log.Error().Err(err).Msg("Begin assessment failed")
		return warnStorageFailure(), nil
	}
	e.phase = PhaseAssessmentPending
	e.timer.Pause()
	e.log.Info().Msg("Assessment pending")
	e.startAssessment()
	e.client.State(e.view())
	return nil, nil
}

func (e *Engine) startAssessment() {
	e.assessGen++
	gen := e.assessGen
	ctx := e.runCtx
	go func() {
		err := e.opts.Assessor.Assess(ctx)
		select {
		case e.assessDone <- assessResult{gen: gen, err: err}:
		case <-e.done:
		}
	}()
}

func (e *Engine) onAssessed(ctx context.Context, res assessResult) {
	if res.gen != e.assessGen || e.phase != PhaseAssessmentPending {
		e.log.Debug().Uint64("gen", res.gen).Msg("Stale assessment result ignored")
		return
	}
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) || ctx.Err() != nil {
			return
		}
		e.log.Warn().Err(res.err).Msg("Assessment failed, continuing")
	}

	e.phase = PhaseAdvancing
	next := model.Position{Part: model.Part3, QuestionIndex: 0}
	err := e.store.Update(ctx, func(p *model.Progress) error {
		if !e.store.Questions().Contains(next) {
			return progress.ErrInvalidPosition
		}
		p.AssessmentStatus = model.AssessmentCompleted
		p.Position = next
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Msg("Complete assessment failed, retrying")
		e.phase = PhaseAssessmentPending
		e.startAssessment()
		return
	}

	e.phase = PhaseAnswering
	e.resetTimer(next.Part)
	e.log.Info().Msg("Assessment completed")
	e.client.GoTo(next)
	e.client.State(e.view())
}

func (e *Engine) finish(ctx context.Context) (*Warning, error) {
	if err := e.store.SetCompleted(ctx, true); err != nil {
		e.log.Error().Err(err).Msg("Finish test failed")
		return warnStorageFailure(), nil
	}
	e.phase = PhaseFinished
	e.timer.Pause()
	e.stopTicker()
	e.log.Info().Msg("Test finished")
	e.client.GoToResults()
	e.client.State(e.view())
	return nil, nil
}

// requestStop pauses the countdown and moves the capture to settling.
func (e *Engine) requestStop(truncated bool) {
	c := e.capture
	e.timer.Pause()
	e.stopTicker()
	c.sess.RemainingAtStop = e.timer.Remaining()
	c.state = captureSettling
	c.truncated = c.truncated || truncated
	e.settleC = e.opts.Clock.After(e.opts.SettleTimeout)
	e.store.SetRecordingInProgress(false)
	e.stopClient()
	e.log.Debug().
		Uint64("capture_id", uint64(c.sess.ID)).
		Int("remaining", c.sess.RemainingAtStop).
		Bool("truncated", c.truncated).
		Msg("Capture stop requested")
}

func (e *Engine) stopClient() {
	if err := e.client.Stop(); err != nil {
		e.log.Warn().Err(err).Msg("Capture stop failed")
	}
}

func (e *Engine) finishCapture(ctx context.Context, a Artifact, source string) *Warning {
	log := e.log.With().Uint64("capture_id", uint64(a.CaptureID)).Str("source", source).Logger()
	if a.CaptureID == 0 {
		log.Warn().Msg("Artifact without capture id ignored")
		return nil
	}
	if e.bridge.Committed(a.CaptureID) {
		log.Debug().Msg("Duplicate completion ignored")
		return nil
	}
	if e.capture == nil || e.capture.sess.ID != a.CaptureID {
		log.Debug().Msg("Stale artifact ignored")
		return nil
	}

	c := e.capture
	if c.state == captureRecording {
		// The client stopped on its own.
		e.timer.Pause()
		e.stopTicker()
		c.sess.RemainingAtStop = e.timer.Remaining()
		e.store.SetRecordingInProgress(false)
	}
	e.dropCapture()

	if c.truncated && e.opts.Policy == config.TruncatedCaptureDiscard {
		log.Info().Msg("Truncated capture discarded")
		e.client.State(e.view())
		return nil
	}

	if _, err := e.bridge.Commit(ctx, c.sess, a); err != nil {
		e.client.State(e.view())
		return warnRecordingLost()
	}
	e.client.State(e.view())
	return nil
}

func (e *Engine) onTick() {
	if e.capture == nil || e.capture.state != captureRecording {
		e.stopTicker()
		return
	}
	res := e.timer.Tick(e.capture.sess.ID)
	if !res.Applied {
		e.log.Debug().Uint64("capture_id", uint64(e.capture.sess.ID)).Msg("Stale tick ignored")
		return
	}
	e.store.SetTimer(e.timer.Remaining())
	e.client.Timer(e.timer.Remaining())
	if res.Expired {
		e.log.Info().Uint64("capture_id", uint64(e.capture.sess.ID)).Msg("Time limit reached")
		e.requestStop(false)
		e.client.State(e.view())
	}
}

func (e *Engine) onSettleTimeout() {
	e.settleC = nil
	if e.capture == nil || e.capture.state != captureSettling {
		return
	}
	e.log.Warn().Uint64("capture_id", uint64(e.capture.sess.ID)).Msg("Capture never settled, abandoned")
	e.dropCapture()
	e.client.Warn(*warnRecordingLost())
	e.client.State(e.view())
}

// abandonCapture forgets the capture without committing anything.
func (e *Engine) abandonCapture() {
	e.timer.Pause()
	e.dropCapture()
}

func (e *Engine) dropCapture() {
	e.capture = nil
	e.settleC = nil
	e.stopTicker()
	e.store.SetRecordingInProgress(false)
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

func (e *Engine) shutdown() {
	e.stopTicker()
	if e.capture != nil {
		e.log.Info().Uint64("capture_id", uint64(e.capture.sess.ID)).Msg("Engine stopped with capture in flight")
	}
}

func (e *Engine) view() View {
	snap := e.store.Snapshot()
	ref := e.store.Questions()
	pos := snap.Position
	prompt, _ := ref.Prompt(pos)

	v := View{
		Phase:               e.phase,
		Position:            pos,
		Route:               pos.Part.Route(),
		Prompt:              prompt,
		TimeLimit:           e.timer.Limit(),
		TimerRemaining:      e.timer.Remaining(),
		RecordingInProgress: snap.RecordingInProgress,
		CaptureError:        e.captureErr,
		AssessmentStatus:    snap.AssessmentStatus,
		Completed:           snap.Completed,
		Notes:               snap.Notes,
		Answers:             make(map[model.Part][]AnswerSummary, len(model.Parts)),
		PartComplete:        make(map[model.Part]bool, len(model.Parts)),
	}
	if e.capture != nil {
		v.CaptureID = e.capture.sess.ID
		v.Settling = e.capture.state == captureSettling
	}
	for _, part := range model.Parts {
		answers := make([]AnswerSummary, ref.Count(part))
		for i := range answers {
			if entry, ok := snap.Recording(part, i); ok {
				answers[i] = AnswerSummary{Answered: true, TimeSpentSeconds: entry.TimeSpentSeconds, MimeType: entry.MimeType}
			}
		}
		v.Answers[part] = answers
		v.PartComplete[part] = e.store.IsPartComplete(part)
	}
	return v
}
