package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/progress"
)

// Sentinel errors for artifact encoding.
var (
	ErrEmptyArtifact    = errors.New("artifact has no audio")
	ErrArtifactTooLarge = errors.New("artifact too large")
)

// CaptureID identifies one start-to-stop capture session. IDs grow
// monotonically per engine; zero means "unidentified".
type CaptureID uint64

// Artifact is the finished recording emitted by the capture primitive.
type Artifact struct {
	CaptureID CaptureID
	Data      []byte
	MimeType  string
}

// CaptureSession is the identity snapshot taken when a capture starts.
type CaptureSession struct {
	ID       CaptureID
	Position model.Position
	Limit    int
	// RemainingAtStop is the timer value when the stop was requested or observed.
	RemainingAtStop int
}

// TimeSpent is limit - remaining, clamped to [0, limit].
func (c CaptureSession) TimeSpent() int {
	spent := c.Limit - c.RemainingAtStop
	if spent < 0 {
		return 0
	}
	if spent > c.Limit {
		return c.Limit
	}
	return spent
}

// Encoder turns raw audio into the storage-safe text form.
type Encoder interface {
	Encode(data []byte) (string, error)
}

// Base64Encoder encodes with standard base64, rejecting empty or oversized input.
type Base64Encoder struct {
	MaxBytes int64
}

func (e Base64Encoder) Encode(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyArtifact
	}
	if e.MaxBytes > 0 && int64(len(data)) > e.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrArtifactTooLarge, len(data), e.MaxBytes)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Bridge commits finished artifacts into the progress store, at most once per
// capture session.
type Bridge struct {
	store     *progress.Store
	enc       Encoder
	now       func() time.Time
	log       zerolog.Logger
	committed map[CaptureID]struct{}
}

// NewBridge creates a Bridge writing into store.
func NewBridge(store *progress.Store, enc Encoder, now func() time.Time, log zerolog.Logger) *Bridge {
	if now == nil {
		now = time.Now
	}
	return &Bridge{
		store:     store,
		enc:       enc,
		now:       now,
		log:       log,
		committed: make(map[CaptureID]struct{}),
	}
}

// Committed reports whether the capture already produced an entry.
func (b *Bridge) Committed(id CaptureID) bool {
	_, ok := b.committed[id]
	return ok
}

// Commit stores the artifact under the position the capture started at.
// It returns false without error for a capture that was already committed.
// On failure nothing is written and the capture stays uncommitted.
func (b *Bridge) Commit(ctx context.Context, sess CaptureSession, a Artifact) (bool, error) {
	if b.Committed(sess.ID) {
		b.log.Debug().Uint64("capture_id", uint64(sess.ID)).Msg("Duplicate completion ignored")
		return false, nil
	}

	encoded, err := b.enc.Encode(a.Data)
	if err != nil {
		b.log.Error().Err(err).
			Uint64("capture_id", uint64(sess.ID)).
			Int("part", int(sess.Position.Part)).
			Int("question_index", sess.Position.QuestionIndex).
			Msg("Encode recording failed")
		return false, fmt.Errorf("encode recording: %w", err)
	}

	entry := model.RecordingEntry{
		EncodedAudio:     encoded,
		MimeType:         a.MimeType,
		TimeSpentSeconds: sess.TimeSpent(),
		CaptureID:        uint64(sess.ID),
		RecordedAt:       b.now().UTC(),
	}

	if err := b.store.SetRecording(ctx, sess.Position.Part, sess.Position.QuestionIndex, entry); err != nil {
		b.log.Error().Err(err).
			Uint64("capture_id", uint64(sess.ID)).
			Msg("Commit recording failed")
		return false, fmt.Errorf("commit recording: %w", err)
	}

	b.committed[sess.ID] = struct{}{}
	b.log.Info().
		Uint64("capture_id", uint64(sess.ID)).
		Int("part", int(sess.Position.Part)).
		Int("question_index", sess.Position.QuestionIndex).
		Int("time_spent", entry.TimeSpentSeconds).
		Msg("Recording committed")
	return true, nil
}
