package progress_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/progress"
	"github.com/stemsi/speaking-test/internal/storage"
)

const key = "speaking:candidate:test:progress"

var ref = model.QuestionReference{
	Part1: []string{"q1", "q2", "q3", "q4"},
	Part2: []string{"cue card"},
	Part3: []string{"d1", "d2", "d3"},
}

func entry(audio string, spent int) model.RecordingEntry {
	return model.RecordingEntry{
		EncodedAudio:     audio,
		MimeType:         "audio/webm",
		TimeSpentSeconds: spent,
		CaptureID:        1,
		RecordedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestLoadAbsentKeyYieldsDefaults(t *testing.T) {
	s, err := progress.Load(context.Background(), storage.NewMemoryKV(), key, ref)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, model.StartPosition, snap.Position)
	assert.Empty(t, snap.Recordings)
	assert.Equal(t, map[model.Part]string{model.Part1: "", model.Part2: "", model.Part3: ""}, snap.Notes)
	assert.Equal(t, model.AssessmentIdle, snap.AssessmentStatus)
	assert.False(t, snap.Completed)
	assert.Equal(t, 30, snap.TimerRemaining)
	assert.False(t, snap.RecordingInProgress)
}

func TestLoadCorruptDocument(t *testing.T) {
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), key, []byte("{not json")))

	_, err := progress.Load(context.Background(), kv, key, ref)
	assert.ErrorIs(t, err, progress.ErrCorrupt)
}

func TestRoundTripAcrossReload(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()

	s, err := progress.Load(ctx, kv, key, ref)
	require.NoError(t, err)
	require.NoError(t, s.SetRecording(ctx, model.Part1, 0, entry("AAAA", 12)))
	require.NoError(t, s.SetRecording(ctx, model.Part2, 0, entry("BBBB", 120)))
	require.NoError(t, s.SetNotes(ctx, model.Part2, "book, author, feelings"))
	require.NoError(t, s.SetPosition(ctx, model.Position{Part: model.Part3, QuestionIndex: 1}))
	require.NoError(t, s.SetAssessmentStatus(ctx, model.AssessmentCompleted))
	require.NoError(t, s.SetCompleted(ctx, true))
	s.SetTimer(7)
	s.SetRecordingInProgress(true)

	before := s.Snapshot()

	reloaded, err := progress.Load(ctx, kv, key, ref)
	require.NoError(t, err)
	after := reloaded.Snapshot()

	assert.Equal(t, before.Recordings, after.Recordings)
	assert.Equal(t, before.Notes, after.Notes)
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.AssessmentStatus, after.AssessmentStatus)
	assert.Equal(t, before.Completed, after.Completed)

	// Ephemeral fields are reinitialised.
	assert.Equal(t, model.Part3TimeLimit, after.TimerRemaining)
	assert.False(t, after.RecordingInProgress)
}

func TestIsPartComplete(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		recorded []int
		part     model.Part
		exp      bool
	}{
		"nothing recorded": {part: model.Part1, exp: false},
		"some recorded":    {part: model.Part1, recorded: []int{0, 1, 3}, exp: false},
		"all recorded":     {part: model.Part1, recorded: []int{0, 1, 2, 3}, exp: true},
		"single question":  {part: model.Part2, recorded: []int{0}, exp: true},
		"unknown part":     {part: model.Part(4), exp: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			s := progress.New(storage.NewMemoryKV(), key, ref)
			for _, i := range test.recorded {
				require.NoError(t, s.SetRecording(ctx, test.part, i, entry("AAAA", 5)))
			}
			assert.Equal(t, test.exp, s.IsPartComplete(test.part))
		})
	}
}

func TestFailedPersistLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := progress.New(kv, key, ref)
	require.NoError(t, s.SetRecording(ctx, model.Part1, 0, entry("AAAA", 5)))

	kv.SetFailure(errors.New("redis down"))

	err := s.SetRecording(ctx, model.Part1, 0, entry("ZZZZ", 9))
	require.Error(t, err)
	err = s.SetRecording(ctx, model.Part1, 1, entry("CCCC", 9))
	require.Error(t, err)

	got, ok := s.Recording(model.Part1, 0)
	require.True(t, ok)
	assert.Equal(t, "AAAA", got.EncodedAudio)
	_, ok = s.Recording(model.Part1, 1)
	assert.False(t, ok)
}

func TestRejectedMutations(t *testing.T) {
	ctx := context.Background()
	s := progress.New(storage.NewMemoryKV(), key, ref)

	assert.ErrorIs(t, s.SetPosition(ctx, model.Position{Part: model.Part2, QuestionIndex: 1}), progress.ErrInvalidPosition)
	assert.ErrorIs(t, s.SetRecording(ctx, model.Part3, 3, entry("AAAA", 1)), progress.ErrInvalidPosition)
	assert.ErrorIs(t, s.SetRecording(ctx, model.Part1, 0, entry("", 1)), progress.ErrEmptyRecording)
	assert.ErrorIs(t, s.SetNotes(ctx, model.Part(0), "x"), progress.ErrInvalidPart)
	assert.ErrorIs(t, s.SetNotes(ctx, model.Part1, strings.Repeat("a", progress.MaxNotesLength+1)), progress.ErrNotesTooLong)
	assert.Equal(t, model.StartPosition, s.Position())
	assert.Equal(t, "", s.Snapshot().Notes[model.Part1])
}

func TestNotesLengthCountsCharacters(t *testing.T) {
	s := progress.New(storage.NewMemoryKV(), key, ref)
	assert.NoError(t, s.SetNotes(context.Background(), model.Part1, strings.Repeat("é", progress.MaxNotesLength)))
}

func TestSnapshotsAreImmutable(t *testing.T) {
	ctx := context.Background()
	s := progress.New(storage.NewMemoryKV(), key, ref)
	require.NoError(t, s.SetRecording(ctx, model.Part1, 0, entry("AAAA", 5)))

	snap := s.Snapshot()
	require.NoError(t, s.SetRecording(ctx, model.Part1, 1, entry("BBBB", 5)))
	require.NoError(t, s.SetNotes(ctx, model.Part1, "later"))

	assert.Len(t, snap.Recordings[model.Part1], 1)
	assert.Equal(t, "", snap.Notes[model.Part1])
}

func TestResetTest(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := progress.New(kv, key, ref)
	require.NoError(t, s.SetRecording(ctx, model.Part1, 0, entry("AAAA", 5)))
	require.NoError(t, s.SetNotes(ctx, model.Part3, "notes"))
	require.NoError(t, s.SetPosition(ctx, model.Position{Part: model.Part2, QuestionIndex: 0}))
	require.NoError(t, s.SetAssessmentStatus(ctx, model.AssessmentPending))
	require.NoError(t, s.SetCompleted(ctx, true))
	s.SetTimer(3)
	s.SetRecordingInProgress(true)

	require.NoError(t, s.ResetTest(ctx))

	snap := s.Snapshot()
	assert.Equal(t, model.StartPosition, snap.Position)
	assert.Empty(t, snap.Recordings)
	assert.Equal(t, map[model.Part]string{model.Part1: "", model.Part2: "", model.Part3: ""}, snap.Notes)
	assert.Equal(t, model.AssessmentIdle, snap.AssessmentStatus)
	assert.False(t, snap.Completed)
	assert.Equal(t, 30, snap.TimerRemaining)
	assert.False(t, snap.RecordingInProgress)

	reloaded, err := progress.Load(ctx, kv, key, ref)
	require.NoError(t, err)
	assert.Equal(t, snap.Progress, reloaded.Snapshot().Progress)
}

func TestLoadRepairsOutOfRangePosition(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	doc := `{"version":1,"progress":{"position":{"current_part":2,"current_question_index":5},"assessment_status":"bogus"}}`
	require.NoError(t, kv.Set(ctx, key, []byte(doc)))

	s, err := progress.Load(ctx, kv, key, ref)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, model.StartPosition, snap.Position)
	assert.Equal(t, model.AssessmentIdle, snap.AssessmentStatus)
	assert.NotNil(t, snap.Recordings)
	assert.Len(t, snap.Notes, 3)
}
