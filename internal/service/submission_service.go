package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/model"
)

// Sentinel errors for recording submissions.
var (
	ErrInvalidCandidate = errors.New("invalid candidate id")
	ErrFileTooLarge     = errors.New("file too large")
	ErrEmptySubmission  = errors.New("submission has no audio")
)

var candidateIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateCandidateID rejects ids that are unsafe as a directory or key segment.
func ValidateCandidateID(id string) error {
	if !candidateIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidCandidate, id)
	}
	return nil
}

// Queue hands archive payloads to the background worker.
type Queue interface {
	Push(ctx context.Context, queue string, payload []byte) error
}

// RedisQueue is a Queue on a Redis list.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue creates a RedisQueue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

// Push appends payload to the tail of the list.
func (q *RedisQueue) Push(ctx context.Context, queue string, payload []byte) error {
	return q.rdb.RPush(ctx, queue, payload).Err()
}

// Len reports how many payloads are waiting.
func (q *RedisQueue) Len(ctx context.Context, queue string) (int64, error) {
	return q.rdb.LLen(ctx, queue).Result()
}

// SubmissionService is the mock submission endpoint: it saves each answered
// question as a named audio file and queues it for the archive.
type SubmissionService struct {
	uploadDir string
	maxBytes  int64
	queue     Queue
	now       func() time.Time
	log       zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService. queue may be nil.
func NewSubmissionService(cfg *config.Config, queue Queue, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		uploadDir: cfg.UploadDir,
		maxBytes:  cfg.MaxRecordingBytes,
		queue:     queue,
		now:       time.Now,
		log:       log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit writes the recording for pos to UPLOAD_DIR/<candidate>/Part<p>_Question<n>.<ext>.
func (s *SubmissionService) Submit(ctx context.Context, candidateID string, pos model.Position, entry model.RecordingEntry) error {
	if err := ValidateCandidateID(candidateID); err != nil {
		return err
	}
	if !entry.Present() {
		return ErrEmptySubmission
	}

	data, err := base64.StdEncoding.DecodeString(entry.EncodedAudio)
	if err != nil {
		return fmt.Errorf("decode recording: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), s.maxBytes)
	}

	mime, ext := detectAudio(data, entry.MimeType)

	dir := filepath.Join(s.uploadDir, candidateID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	base := config.CacheKey.SubmissionName(int(pos.Part), pos.QuestionIndex)
	// A re-recording in another format must not leave the old file behind.
	stale, _ := filepath.Glob(filepath.Join(dir, base+".*"))
	for _, f := range stale {
		_ = os.Remove(f)
	}

	destPath := filepath.Join(dir, base+ext)
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	sub := model.Submission{
		ID:               uuid.New(),
		CandidateID:      candidateID,
		Part:             pos.Part,
		QuestionIndex:    pos.QuestionIndex,
		FilePath:         destPath,
		MimeType:         mime,
		SizeBytes:        int64(len(data)),
		TimeSpentSeconds: entry.TimeSpentSeconds,
		SubmittedAt:      s.now().UTC(),
	}

	s.log.Info().
		Str("candidate_id", candidateID).
		Int("part", int(pos.Part)).
		Int("question_index", pos.QuestionIndex).
		Str("file", destPath).
		Int64("size_bytes", sub.SizeBytes).
		Msg("Recording submitted")

	if s.queue == nil {
		return nil
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	if err := s.queue.Push(ctx, config.WorkerKey.PersistSubmissionsQueue, payload); err != nil {
		return fmt.Errorf("queue submission: %w", err)
	}
	return nil
}

// detectAudio sniffs the bytes first and falls back to the declared type.
func detectAudio(data []byte, declared string) (string, string) {
	if m := mimetype.Detect(data); isAudio(m.String()) && m.Extension() != "" {
		return m.String(), m.Extension()
	}
	if declared != "" {
		base := strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
		if m := mimetype.Lookup(base); m != nil && m.Extension() != "" {
			return base, m.Extension()
		}
	}
	return "application/octet-stream", ".bin"
}

func isAudio(mime string) bool {
	return strings.HasPrefix(mime, "audio/") || mime == "video/webm" || mime == "video/ogg"
}
