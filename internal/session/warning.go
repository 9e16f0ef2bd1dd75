package session

import "fmt"

// WarningKind identifies a user-visible, recoverable refusal.
type WarningKind string

const (
	WarnMissingRecording   WarningKind = "missing_recording"
	WarnIncompletePart     WarningKind = "incomplete_part"
	WarnAssessmentPending  WarningKind = "assessment_pending"
	WarnAssessmentNeeded   WarningKind = "assessment_required"
	WarnTestFinished       WarningKind = "test_finished"
	WarnRecordingActive    WarningKind = "recording_active"
	WarnCaptureSettling    WarningKind = "capture_settling"
	WarnCaptureUnavailable WarningKind = "capture_unavailable"
	WarnRecordingLost      WarningKind = "recording_lost"
	WarnStorageFailure     WarningKind = "storage_failure"
)

// Warning is a refusal the client shows to the candidate. It never changes state.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) Error() string { return fmt.Sprintf("%s: %s", w.Kind, w.Message) }

func warnMissingRecording() *Warning {
	return &Warning{Kind: WarnMissingRecording, Message: "Please record an answer for the current question before proceeding."}
}

func warnIncompletePart(part int, finishing bool) *Warning {
	verb := "proceeding"
	if finishing {
		verb = "finishing"
	}
	return &Warning{
		Kind:    WarnIncompletePart,
		Message: fmt.Sprintf("Please record answers for all questions in Part %d before %s.", part, verb),
	}
}

func warnAssessmentPending() *Warning {
	return &Warning{Kind: WarnAssessmentPending, Message: "Your answers are being assessed, please wait."}
}

func warnAssessmentNeeded() *Warning {
	return &Warning{Kind: WarnAssessmentNeeded, Message: "Submit Part 2 for assessment before starting Part 3."}
}

func warnTestFinished() *Warning {
	return &Warning{Kind: WarnTestFinished, Message: "The test is already finished. Start a new attempt to record again."}
}

func warnRecordingActive() *Warning {
	return &Warning{Kind: WarnRecordingActive, Message: "Stop the current recording before moving on."}
}

func warnCaptureSettling() *Warning {
	return &Warning{Kind: WarnCaptureSettling, Message: "The previous recording is still being saved, try again in a moment."}
}

func warnCaptureUnavailable(reason string) *Warning {
	return &Warning{Kind: WarnCaptureUnavailable, Message: fmt.Sprintf("Microphone unavailable: %s", reason)}
}

func warnRecordingLost() *Warning {
	return &Warning{Kind: WarnRecordingLost, Message: "Your recording could not be saved, please record your answer again."}
}

func warnStorageFailure() *Warning {
	return &Warning{Kind: WarnStorageFailure, Message: "Your progress could not be saved, please try again."}
}
