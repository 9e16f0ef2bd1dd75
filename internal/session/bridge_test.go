package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/progress"
	"github.com/stemsi/speaking-test/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureSessionTimeSpent(t *testing.T) {
	tests := map[string]struct {
		limit     int
		remaining int
		exp       int
	}{
		"Full allowance used.":          {limit: 120, remaining: 0, exp: 120},
		"Partially used.":               {limit: 30, remaining: 12, exp: 18},
		"Nothing used.":                 {limit: 40, remaining: 40, exp: 0},
		"Remaining above limit floors.": {limit: 30, remaining: 45, exp: 0},
		"Negative remaining caps.":      {limit: 30, remaining: -5, exp: 30},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sess := CaptureSession{Limit: test.limit, RemainingAtStop: test.remaining}
			assert.Equal(t, test.exp, sess.TimeSpent())
		})
	}
}

func TestBase64Encoder(t *testing.T) {
	tests := map[string]struct {
		max    int64
		data   []byte
		exp    string
		expErr error
	}{
		"Regular audio should be encoded.": {data: []byte("abc"), exp: "YWJj"},
		"Empty audio should fail.":         {data: nil, expErr: ErrEmptyArtifact},
		"Oversized audio should fail.":     {max: 2, data: []byte("abc"), expErr: ErrArtifactTooLarge},
		"Zero max means unlimited.":        {max: 0, data: []byte("abc"), exp: "YWJj"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Base64Encoder{MaxBytes: test.max}.Encode(test.data)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.exp, got)
		})
	}
}

func newBridgeStore(t *testing.T) (*progress.Store, *storage.MemoryKV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	s, err := progress.Load(context.Background(), kv, "k", testRef)
	require.NoError(t, err)
	return s, kv
}

func TestBridgeCommitIsIdempotentPerCapture(t *testing.T) {
	store, _ := newBridgeStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := NewBridge(store, Base64Encoder{}, func() time.Time { return now }, zerolog.Nop())

	sess := CaptureSession{ID: 7, Position: model.Position{Part: model.Part1, QuestionIndex: 2}, Limit: 30, RemainingAtStop: 10}
	art := Artifact{CaptureID: 7, Data: []byte("abc"), MimeType: "audio/webm"}

	ok, err := b.Commit(context.Background(), sess, art)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Commit(context.Background(), sess, Artifact{CaptureID: 7, Data: []byte("other")})
	require.NoError(t, err)
	assert.False(t, ok)

	entry, found := store.Recording(model.Part1, 2)
	require.True(t, found)
	assert.Equal(t, model.RecordingEntry{
		EncodedAudio:     "YWJj",
		MimeType:         "audio/webm",
		TimeSpentSeconds: 20,
		CaptureID:        7,
		RecordedAt:       now,
	}, entry)
}

func TestBridgeFailedCommitLeavesExistingEntry(t *testing.T) {
	store, kv := newBridgeStore(t)
	b := NewBridge(store, Base64Encoder{}, nil, zerolog.Nop())
	pos := model.Position{Part: model.Part2, QuestionIndex: 0}

	_, err := b.Commit(context.Background(), CaptureSession{ID: 1, Position: pos, Limit: 120, RemainingAtStop: 100}, Artifact{CaptureID: 1, Data: []byte("first")})
	require.NoError(t, err)
	before, _ := store.Recording(model.Part2, 0)

	// Encoding failure.
	_, err = b.Commit(context.Background(), CaptureSession{ID: 2, Position: pos, Limit: 120}, Artifact{CaptureID: 2})
	assert.ErrorIs(t, err, ErrEmptyArtifact)
	assert.False(t, b.Committed(2))

	// Persistence failure.
	kv.SetFailure(errors.New("disk full"))
	_, err = b.Commit(context.Background(), CaptureSession{ID: 3, Position: pos, Limit: 120}, Artifact{CaptureID: 3, Data: []byte("third")})
	assert.Error(t, err)
	assert.False(t, b.Committed(3))

	after, _ := store.Recording(model.Part2, 0)
	assert.Equal(t, before, after)

	// The failed capture can still be committed once storage recovers.
	kv.SetFailure(nil)
	ok, err := b.Commit(context.Background(), CaptureSession{ID: 3, Position: pos, Limit: 120}, Artifact{CaptureID: 3, Data: []byte("third")})
	require.NoError(t, err)
	assert.True(t, ok)
}
