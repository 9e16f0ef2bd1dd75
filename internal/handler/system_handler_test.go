package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubQueue struct {
	n   int64
	err error
}

func (s stubQueue) Len(context.Context, string) (int64, error) { return s.n, s.err }

type stubCounter int

func (s stubCounter) Len() int { return int(s) }

func TestHealth(t *testing.T) {
	tests := map[string]struct {
		db        Pinger
		queue     QueueLength
		expStatus int
		expReport healthReport
	}{
		"Healthy dependencies should report ok.": {
			db:        stubPinger{},
			queue:     stubQueue{n: 3},
			expStatus: http.StatusOK,
			expReport: healthReport{Status: "ok", Database: "ok", Queue: "ok", QueueSubmissions: 3, ActiveEngines: 2},
		},
		"A dead database should degrade.": {
			db:        stubPinger{err: errors.New("refused")},
			queue:     stubQueue{},
			expStatus: http.StatusServiceUnavailable,
			expReport: healthReport{Status: "degraded", Database: "unavailable", Queue: "ok", ActiveEngines: 2},
		},
		"A dead queue should degrade.": {
			db:        stubPinger{},
			queue:     stubQueue{err: errors.New("refused")},
			expStatus: http.StatusServiceUnavailable,
			expReport: healthReport{Status: "degraded", Database: "ok", Queue: "unavailable", ActiveEngines: 2},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h := NewSystemHandler(test.db, test.queue, stubCounter(2), zerolog.Nop())
			r := gin.New()
			r.GET("/health", h.Health)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, test.expStatus, rec.Code)

			var body struct {
				Data healthReport `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			got := body.Data
			got.Uptime, got.Goroutines, got.GoVersion = "", 0, ""
			assert.Equal(t, test.expReport, got)
		})
	}
}
