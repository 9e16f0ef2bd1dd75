// Package progress is the single source of truth for a candidate's test:
// position, recordings, notes, assessment status and completion.
//
// A Store is owned by exactly one goroutine (the candidate's session engine)
// and is not safe for concurrent use. Every mutation builds a new state,
// persists it, and only then swaps it in, so a failed write leaves the
// in-memory state untouched and snapshots handed out earlier never change.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/storage"
)

// documentVersion is bumped whenever the persisted shape changes.
const documentVersion = 1

var (
	// ErrCorrupt is returned by Load when the stored document cannot be decoded.
	ErrCorrupt = errors.New("stored progress is corrupt")
	// ErrInvalidPosition is returned when a position is outside the question reference.
	ErrInvalidPosition = errors.New("position outside question reference")
	// ErrInvalidPart is returned for part numbers other than 1, 2 or 3.
	ErrInvalidPart = errors.New("invalid part")
	// ErrEmptyRecording is returned when a recording carries no audio.
	ErrEmptyRecording = errors.New("recording has no audio")
	// ErrNotesTooLong is returned for notes over MaxNotesLength characters.
	ErrNotesTooLong = errors.New("notes too long")
)

// MaxNotesLength bounds one part's notes, whichever transport sets them.
const MaxNotesLength = 10000

// document is what goes to durable storage.
type document struct {
	Version  int            `json:"version"`
	Progress model.Progress `json:"progress"`
}

// Snapshot is a read-only view of the store. Callers must not mutate its maps.
type Snapshot struct {
	model.Progress
	TimerRemaining      int  `json:"timer_remaining"`
	RecordingInProgress bool `json:"recording_in_progress"`
}

// Store holds one candidate's progress.
type Store struct {
	kv  storage.KV
	key string
	ref model.QuestionReference

	state model.Progress

	// Ephemeral, never persisted.
	timer     int
	recording bool
}

// Load reads the progress stored under key. An absent key yields the initial
// state. The live timer always restarts at the current question's limit.
func Load(ctx context.Context, kv storage.KV, key string, ref model.QuestionReference) (*Store, error) {
	s := &Store{kv: kv, key: key, ref: ref, state: model.NewProgress()}

	raw, err := kv.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load progress: %w", err)
	default:
		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		s.state = s.normalize(doc.Progress)
	}

	s.timer = s.state.Position.Part.TimeLimit()
	return s, nil
}

// New returns a store in the initial state without reading storage.
func New(kv storage.KV, key string, ref model.QuestionReference) *Store {
	return &Store{
		kv:    kv,
		key:   key,
		ref:   ref,
		state: model.NewProgress(),
		timer: model.StartPosition.Part.TimeLimit(),
	}
}

// normalize repairs a decoded document so the store invariants hold.
func (s *Store) normalize(p model.Progress) model.Progress {
	if p.Recordings == nil {
		p.Recordings = map[model.Part]map[int]model.RecordingEntry{}
	}
	if p.Notes == nil {
		p.Notes = map[model.Part]string{}
	}
	for _, part := range model.Parts {
		if _, ok := p.Notes[part]; !ok {
			p.Notes[part] = ""
		}
	}
	if !s.ref.Contains(p.Position) {
		p.Position = model.StartPosition
	}
	switch p.AssessmentStatus {
	case model.AssessmentIdle, model.AssessmentPending, model.AssessmentCompleted:
	default:
		p.AssessmentStatus = model.AssessmentIdle
	}
	return p
}

// Questions returns the reference the store validates positions against.
func (s *Store) Questions() model.QuestionReference {
	return s.ref
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Progress:            s.state.Clone(),
		TimerRemaining:      s.timer,
		RecordingInProgress: s.recording,
	}
}

// Position returns the current position.
func (s *Store) Position() model.Position {
	return s.state.Position
}

// AssessmentStatus returns the current assessment status.
func (s *Store) AssessmentStatus() model.AssessmentStatus {
	return s.state.AssessmentStatus
}

// Completed reports whether the test was finished.
func (s *Store) Completed() bool {
	return s.state.Completed
}

// Recording returns the entry for (part, index) if one with audio exists.
func (s *Store) Recording(part model.Part, index int) (model.RecordingEntry, bool) {
	return s.state.Recording(part, index)
}

// IsPartComplete holds iff every question of the part has a non-empty recording.
func (s *Store) IsPartComplete(part model.Part) bool {
	n := s.ref.Count(part)
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if _, ok := s.state.Recording(part, i); !ok {
			return false
		}
	}
	return true
}

// Update applies fn to a copy of the state, persists it, then swaps it in.
// fn may return an error to abort without writing.
func (s *Store) Update(ctx context.Context, fn func(p *model.Progress) error) error {
	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// SetPosition moves to pos.
func (s *Store) SetPosition(ctx context.Context, pos model.Position) error {
	return s.Update(ctx, func(p *model.Progress) error {
		if !s.ref.Contains(pos) {
			return fmt.Errorf("%w: part %d question %d", ErrInvalidPosition, pos.Part, pos.QuestionIndex)
		}
		p.Position = pos
		return nil
	})
}

// SetRecording commits an entry, overwriting any previous one for the same key.
func (s *Store) SetRecording(ctx context.Context, part model.Part, index int, entry model.RecordingEntry) error {
	return s.Update(ctx, func(p *model.Progress) error {
		if !s.ref.Contains(model.Position{Part: part, QuestionIndex: index}) {
			return fmt.Errorf("%w: part %d question %d", ErrInvalidPosition, part, index)
		}
		if !entry.Present() {
			return ErrEmptyRecording
		}
		if p.Recordings[part] == nil {
			p.Recordings[part] = map[int]model.RecordingEntry{}
		}
		p.Recordings[part][index] = entry
		return nil
	})
}

// SetNotes replaces the free-text notes of a part.
func (s *Store) SetNotes(ctx context.Context, part model.Part, notes string) error {
	return s.Update(ctx, func(p *model.Progress) error {
		if !part.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidPart, part)
		}
		if n := utf8.RuneCountInString(notes); n > MaxNotesLength {
			return fmt.Errorf("%w: %d characters, at most %d", ErrNotesTooLong, n, MaxNotesLength)
		}
		p.Notes[part] = notes
		return nil
	})
}

// SetAssessmentStatus records the assessment status.
func (s *Store) SetAssessmentStatus(ctx context.Context, status model.AssessmentStatus) error {
	return s.Update(ctx, func(p *model.Progress) error {
		p.AssessmentStatus = status
		return nil
	})
}

// SetCompleted records the completion flag.
func (s *Store) SetCompleted(ctx context.Context, completed bool) error {
	return s.Update(ctx, func(p *model.Progress) error {
		p.Completed = completed
		return nil
	})
}

// SetTimer sets the live timer value, clamped at zero. Not persisted.
func (s *Store) SetTimer(remaining int) {
	if remaining < 0 {
		remaining = 0
	}
	s.timer = remaining
}

// SetRecordingInProgress sets the live capture flag. Not persisted.
func (s *Store) SetRecordingInProgress(recording bool) {
	s.recording = recording
}

// ResetTest returns everything to the initial state in one write.
func (s *Store) ResetTest(ctx context.Context) error {
	next := model.NewProgress()
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.state = next
	s.timer = next.Position.Part.TimeLimit()
	s.recording = false
	return nil
}

func (s *Store) persist(ctx context.Context, p model.Progress) error {
	raw, err := json.Marshal(document{Version: documentVersion, Progress: p})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	return nil
}
