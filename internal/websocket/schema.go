package websocket

import (
	"encoding/json"

	"github.com/stemsi/speaking-test/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart          Action = "start"
	ActionStop           Action = "stop"
	ActionCaptureStarted Action = "capture_started"
	ActionCaptureStopped Action = "capture_stopped"
	ActionArtifactReady  Action = "artifact_ready"
	ActionCaptureError   Action = "capture_error"
	ActionCaptureReady   Action = "capture_ready"
	ActionNext           Action = "next"
	ActionPrevious       Action = "previous"
	ActionEnter          Action = "enter"
	ActionNotes          Action = "notes"
	ActionReset          Action = "reset"
	ActionExit           Action = "exit"
	ActionPing           Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action          `json:"action"`
	Raw    json.RawMessage `json:"-"`
}

// ArtifactRequest carries a finished recording for capture_stopped and artifact_ready.
type ArtifactRequest struct {
	Action    Action `json:"action"`
	CaptureID uint64 `json:"capture_id"`
	Audio     string `json:"audio"` // base64 of the raw capture bytes
	MimeType  string `json:"mime"`
}

// CaptureErrorRequest reports that the capture primitive failed.
type CaptureErrorRequest struct {
	Action Action `json:"action"`
	Error  string `json:"error"`
}

// EnterRequest is sent when the client lands on a part route.
type EnterRequest struct {
	Action Action     `json:"action"`
	Part   model.Part `json:"part"`
}

// NotesRequest replaces the notes of one part.
type NotesRequest struct {
	Action Action     `json:"action"`
	Part   model.Part `json:"part"`
	Notes  string     `json:"notes"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventCaptureCommand Event = "capture_command"
	EventCaptureStarted Event = "capture_started"
	EventTimer          Event = "timer"
	EventState          Event = "state"
	EventWarning        Event = "warning"
	EventNavigate       Event = "navigate"
	EventError          Event = "error"
	EventPong           Event = "pong"
)

// Capture commands carried by EventCaptureCommand.
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandClear = "clear"
)

type CaptureCommandResponse struct {
	Event   Event  `json:"event"`
	Command string `json:"command"`
}

type CaptureStartedResponse struct {
	Event     Event  `json:"event"`
	CaptureID uint64 `json:"capture_id"`
}

type TimerResponse struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

type StateResponse struct {
	Event Event       `json:"event"`
	View  interface{} `json:"view"`
}

type WarningResponse struct {
	Event   Event  `json:"event"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NavigateResponse moves the client to Route. QuestionIndex is set for
// question routes and absent for results and home.
type NavigateResponse struct {
	Event         Event  `json:"event"`
	Route         string `json:"route"`
	QuestionIndex *int   `json:"question_index,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
