package session

import (
	"context"
	"errors"

	"github.com/stemsi/speaking-test/internal/model"
)

// ErrNoClient is returned by the detached client when nothing is connected
// to capture audio.
var ErrNoClient = errors.New("no capture client attached")

// CaptureAdapter drives the audio capture primitive living in the browser.
// Its lifecycle hooks come back to the engine as CaptureStarted,
// CaptureStopped and ArtifactReady calls.
type CaptureAdapter interface {
	Start() error
	Stop() error
	Clear() error
}

// Navigator moves the client between routes.
type Navigator interface {
	GoTo(pos model.Position)
	GoToResults()
	GoToHome()
}

// Notifier pushes engine output to the client.
type Notifier interface {
	CaptureStarted(id CaptureID)
	Timer(remaining int)
	Warn(w Warning)
	State(v View)
}

// Client is everything the engine talks to on the other end of the stream.
type Client interface {
	CaptureAdapter
	Navigator
	Notifier
}

// Submitter is the mock submission endpoint, called once per answered
// question when the candidate moves on.
type Submitter interface {
	Submit(ctx context.Context, candidateID string, pos model.Position, entry model.RecordingEntry) error
}

// Assessor is the mock scoring service run between part 2 and part 3.
type Assessor interface {
	Assess(ctx context.Context) error
}

type detachedClient struct{}

func (detachedClient) Start() error { return ErrNoClient }
func (detachedClient) Stop() error { return nil }
func (detachedClient) Clear() error { return nil }
func (detachedClient) GoTo(model.Position) {}
func (detachedClient) GoToResults() {}
func (detachedClient) GoToHome() {}
func (detachedClient) CaptureStarted(CaptureID) {}
func (detachedClient) Timer(int) {}
func (detachedClient) Warn(Warning) {}
func (detachedClient) State(View) {}

type noopSubmitter struct{}

func (noopSubmitter) Submit(context.Context, string, model.Position, model.RecordingEntry) error {
	return nil
}
