package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Push(ctx context.Context, queue string, payload []byte) error {
	args := m.Called(ctx, queue, payload)
	return args.Error(0)
}

func wavBytes() []byte {
	header := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x40\x1f\x00\x00\x80\x3e\x00\x00\x02\x00\x10\x00data\x00\x00\x00\x00")
	return header
}

func entryOf(data []byte, mime string) model.RecordingEntry {
	return model.RecordingEntry{
		EncodedAudio:     base64.StdEncoding.EncodeToString(data),
		MimeType:         mime,
		TimeSpentSeconds: 17,
	}
}

func newTestSubmissionService(t *testing.T, q Queue, maxBytes int64) (*SubmissionService, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{UploadDir: dir, MaxRecordingBytes: maxBytes}
	return NewSubmissionService(cfg, q, zerolog.Nop()), dir
}

func TestSubmissionServiceWritesNamedFileAndQueues(t *testing.T) {
	q := &mockQueue{}
	var queued []byte
	q.On("Push", mock.Anything, config.WorkerKey.PersistSubmissionsQueue, mock.Anything).
		Run(func(args mock.Arguments) { queued = args.Get(2).([]byte) }).
		Return(nil).Once()

	s, dir := newTestSubmissionService(t, q, 0)
	pos := model.Position{Part: model.Part2, QuestionIndex: 0}

	require.NoError(t, s.Submit(context.Background(), "cand-1", pos, entryOf(wavBytes(), "audio/wav")))

	path := filepath.Join(dir, "cand-1", "Part2_Question1.wav")
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wavBytes(), got)

	var sub model.Submission
	require.NoError(t, json.Unmarshal(queued, &sub))
	assert.Equal(t, "cand-1", sub.CandidateID)
	assert.Equal(t, model.Part2, sub.Part)
	assert.Equal(t, 0, sub.QuestionIndex)
	assert.Equal(t, path, sub.FilePath)
	assert.Equal(t, 17, sub.TimeSpentSeconds)
	assert.Equal(t, int64(len(wavBytes())), sub.SizeBytes)
	q.AssertExpectations(t)
}

func TestSubmissionServiceExtension(t *testing.T) {
	tests := map[string]struct {
		data    []byte
		mime    string
		expFile string
	}{
		"Sniffed audio wins.":                     {data: wavBytes(), mime: "audio/webm", expFile: "Part1_Question3.wav"},
		"Declared type is used when sniff fails.": {data: []byte("opaque"), mime: "audio/webm;codecs=opus", expFile: "Part1_Question3.webm"},
		"Unknown data falls back to bin.":         {data: []byte("opaque"), expFile: "Part1_Question3.bin"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			s, dir := newTestSubmissionService(t, nil, 0)
			pos := model.Position{Part: model.Part1, QuestionIndex: 2}

			require.NoError(t, s.Submit(context.Background(), "cand-1", pos, entryOf(test.data, test.mime)))
			_, err := os.Stat(filepath.Join(dir, "cand-1", test.expFile))
			assert.NoError(t, err)
		})
	}
}

func TestSubmissionServiceReplacesEarlierFormat(t *testing.T) {
	s, dir := newTestSubmissionService(t, nil, 0)
	pos := model.Position{Part: model.Part3, QuestionIndex: 1}
	ctx := context.Background()

	require.NoError(t, s.Submit(ctx, "cand-1", pos, entryOf([]byte("opaque"), "")))
	require.NoError(t, s.Submit(ctx, "cand-1", pos, entryOf(wavBytes(), "")))

	files, err := filepath.Glob(filepath.Join(dir, "cand-1", "Part3_Question2.*"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "cand-1", "Part3_Question2.wav")}, files)
}

func TestSubmissionServiceRejects(t *testing.T) {
	tests := map[string]struct {
		candidate string
		entry     model.RecordingEntry
		maxBytes  int64
		expErr    error
	}{
		"Path traversal in the candidate id should be rejected.": {
			candidate: "../etc",
			entry:     entryOf([]byte("x"), ""),
			expErr:    ErrInvalidCandidate,
		},
		"Empty recordings should be rejected.": {
			candidate: "cand-1",
			expErr:    ErrEmptySubmission,
		},
		"Oversized recordings should be rejected.": {
			candidate: "cand-1",
			entry:     entryOf([]byte("0123456789"), ""),
			maxBytes:  4,
			expErr:    ErrFileTooLarge,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			s, dir := newTestSubmissionService(t, nil, test.maxBytes)

			err := s.Submit(context.Background(), test.candidate, model.StartPosition, test.entry)
			assert.ErrorIs(t, err, test.expErr)
			entries, _ := os.ReadDir(dir)
			assert.Empty(t, entries)
		})
	}
}

func TestSubmissionServiceQueueFailure(t *testing.T) {
	q := &mockQueue{}
	q.On("Push", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	s, dir := newTestSubmissionService(t, q, 0)
	err := s.Submit(context.Background(), "cand-1", model.StartPosition, entryOf(wavBytes(), ""))
	assert.Error(t, err)

	// The file is still on disk.
	_, statErr := os.Stat(filepath.Join(dir, "cand-1", "Part1_Question1.wav"))
	assert.NoError(t, statErr)
}
