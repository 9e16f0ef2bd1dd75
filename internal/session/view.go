package session

import "github.com/stemsi/speaking-test/internal/model"

// Phase is the navigation state of an engine.
type Phase string

const (
	PhaseAnswering         Phase = "answering"
	PhaseAdvancing         Phase = "advancing"
	PhaseAssessmentPending Phase = "assessment_pending"
	PhaseFinished          Phase = "finished"
)

// AnswerSummary describes one question's recording without the audio.
type AnswerSummary struct {
	Answered         bool   `json:"answered"`
	TimeSpentSeconds int    `json:"time_spent_seconds,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
}

// View is what clients render. It never carries audio.
type View struct {
	Phase               Phase                          `json:"phase"`
	Position            model.Position                 `json:"position"`
	Route               string                         `json:"route"`
	Prompt              string                         `json:"prompt"`
	TimeLimit           int                            `json:"time_limit"`
	TimerRemaining      int                            `json:"timer_remaining"`
	RecordingInProgress bool                           `json:"recording_in_progress"`
	Settling            bool                           `json:"settling"`
	CaptureID           CaptureID                      `json:"capture_id,omitempty"`
	CaptureError        string                         `json:"capture_error,omitempty"`
	AssessmentStatus    model.AssessmentStatus         `json:"assessment_status"`
	Completed           bool                           `json:"completed"`
	Notes               map[model.Part]string          `json:"notes"`
	Answers             map[model.Part][]AnswerSummary `json:"answers"`
	PartComplete        map[model.Part]bool            `json:"part_complete"`
}
