package model

import (
	"time"

	"github.com/google/uuid"
)

// Submission is an archived answer file handed to the mock submission endpoint.
type Submission struct {
	ID               uuid.UUID `json:"id"`
	CandidateID      string    `json:"candidate_id"`
	Part             Part      `json:"part"`
	QuestionIndex    int       `json:"question_index"`
	FilePath         string    `json:"file_path"`
	MimeType         string    `json:"mime_type"`
	SizeBytes        int64     `json:"size_bytes"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// UpdateNotesRequest is the payload for replacing a part's notes.
type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// PartURI binds the :part path segment.
type PartURI struct {
	Part int `uri:"part" json:"part" binding:"required,part"`
}
