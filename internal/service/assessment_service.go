package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/clock"
)

// SimulatedAssessor stands in for a remote scoring service: it resolves after
// a fixed delay.
type SimulatedAssessor struct {
	clk   clock.Clock
	delay time.Duration
	log   zerolog.Logger
}

// NewSimulatedAssessor creates a SimulatedAssessor.
func NewSimulatedAssessor(clk clock.Clock, delay time.Duration, log zerolog.Logger) *SimulatedAssessor {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SimulatedAssessor{
		clk:   clk,
		delay: delay,
		log:   log.With().Str("component", "assessor").Logger(),
	}
}

// Assess waits for the configured delay or ctx cancellation.
func (a *SimulatedAssessor) Assess(ctx context.Context) error {
	a.log.Debug().Dur("delay", a.delay).Msg("Assessment started")
	select {
	case <-a.clk.After(a.delay):
		a.log.Debug().Msg("Assessment finished")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
