package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/model"
)

const requeueTimeout = 3 * time.Second

// QueueClient is the subset of *redis.Client the worker needs.
type QueueClient interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPop(ctx context.Context, key string) *redis.StringCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// SubmissionArchive persists submissions. Implemented by repository.SubmissionRepository.
type SubmissionArchive interface {
	Upsert(ctx context.Context, s *model.Submission) error
}

// SubmissionWorker consumes persist_submissions_queue and UPSERTs into recording_submissions.
type SubmissionWorker struct {
	archive    SubmissionArchive
	rdb        QueueClient
	queue      string
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(archive SubmissionArchive, rdb QueueClient, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		archive:    archive,
		rdb:        rdb,
		queue:      config.WorkerKey.PersistSubmissionsQueue,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "submission_worker").Logger(),
	}
}

// Start runs the worker loop until ctx is cancelled, then drains the queue.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	sub, ok := w.decode(result[1])
	if !ok {
		return
	}

	if err := w.archive.Upsert(ctx, sub); err != nil {
		w.log.Error().Err(err).
			Str("candidate_id", sub.CandidateID).
			Int("part", int(sub.Part)).
			Int("question_index", sub.QuestionIndex).
			Dur("retry_in", w.retryDelay).
			Msg("Persist error, retrying")
		w.requeue(ctx, result[1])
		select {
		case <-time.After(w.retryDelay):
		case <-ctx.Done():
		}
	}
}

// requeue pushes a payload back. Cancellation of ctx is ignored so an item
// whose Upsert was cut short by shutdown stays queued for drain.
func (w *SubmissionWorker) requeue(ctx context.Context, raw string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()
	if err := w.rdb.RPush(ctx, w.queue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("payload", raw).Msg("Requeue error, submission lost")
	}
}

// decode drops payloads that can never be archived.
func (w *SubmissionWorker) decode(raw string) (*model.Submission, bool) {
	var sub model.Submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error, payload dropped")
		return nil, false
	}
	if sub.CandidateID == "" || !sub.Part.Valid() || sub.QuestionIndex < 0 {
		w.log.Error().Str("payload", raw).Msg("Invalid submission, payload dropped")
		return nil, false
	}
	return &sub, true
}

// drain processes all remaining items in the queue before shutdown.
func (w *SubmissionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, w.queue).Result()
		if err != nil {
			break
		}

		sub, ok := w.decode(result)
		if !ok {
			continue
		}

		if err := w.archive.Upsert(ctx, sub); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.requeue(ctx, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
