package model

import "time"

// AssessmentStatus models the simulated grading pause between part 2 and part 3.
type AssessmentStatus string

const (
	AssessmentIdle      AssessmentStatus = "idle"
	AssessmentPending   AssessmentStatus = "pending"
	AssessmentCompleted AssessmentStatus = "completed"
)

// Position is the question the candidate is currently on.
type Position struct {
	Part          Part `json:"current_part"`
	QuestionIndex int  `json:"current_question_index"`
}

// StartPosition is where every fresh test begins.
var StartPosition = Position{Part: Part1, QuestionIndex: 0}

// RecordingEntry is the persisted answer to one question.
type RecordingEntry struct {
	EncodedAudio     string    `json:"encoded_audio"`
	MimeType         string    `json:"mime_type,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	CaptureID        uint64    `json:"capture_id"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// Present reports whether the entry carries audio.
func (e RecordingEntry) Present() bool {
	return e.EncodedAudio != ""
}

// Progress is the durable part of a candidate's test. The live timer value
// and the recording-in-progress flag are deliberately not part of it.
type Progress struct {
	Position         Position                        `json:"position"`
	Recordings       map[Part]map[int]RecordingEntry `json:"recordings"`
	Notes            map[Part]string                 `json:"notes"`
	AssessmentStatus AssessmentStatus                `json:"assessment_status"`
	Completed        bool                            `json:"completed"`
}

// NewProgress returns the initial state: part 1, question 0, nothing recorded.
func NewProgress() Progress {
	notes := make(map[Part]string, len(Parts))
	for _, p := range Parts {
		notes[p] = ""
	}
	return Progress{
		Position:         StartPosition,
		Recordings:       map[Part]map[int]RecordingEntry{},
		Notes:            notes,
		AssessmentStatus: AssessmentIdle,
	}
}

// Recording looks up the entry for (part, index). ok is false when absent or empty.
func (p Progress) Recording(part Part, index int) (RecordingEntry, bool) {
	entry, ok := p.Recordings[part][index]
	if !ok || !entry.Present() {
		return RecordingEntry{}, false
	}
	return entry, true
}

// MaxCaptureID returns the largest capture id among stored recordings.
func (p Progress) MaxCaptureID() uint64 {
	var highest uint64
	for _, entries := range p.Recordings {
		for _, e := range entries {
			if e.CaptureID > highest {
				highest = e.CaptureID
			}
		}
	}
	return highest
}

// Clone returns a copy that shares no maps with p.
func (p Progress) Clone() Progress {
	out := p
	out.Recordings = make(map[Part]map[int]RecordingEntry, len(p.Recordings))
	for part, entries := range p.Recordings {
		inner := make(map[int]RecordingEntry, len(entries))
		for i, e := range entries {
			inner[i] = e
		}
		out.Recordings[part] = inner
	}
	out.Notes = make(map[Part]string, len(p.Notes))
	for part, n := range p.Notes {
		out.Notes[part] = n
	}
	return out
}
