package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger checks a backing service. *pgxpool.Pool satisfies it directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueLength reports the depth of a Redis list.
type QueueLength interface {
	Len(ctx context.Context, queue string) (int64, error)
}

// EngineCounter reports live engines. Implemented by session.Registry.
type EngineCounter interface {
	Len() int
}

// SystemHandler reports service health.
type SystemHandler struct {
	db        Pinger
	queue     QueueLength
	engines   EngineCounter
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(db Pinger, queue QueueLength, engines EngineCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		queue:     queue,
		engines:   engines,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	Database         string `json:"database"`
	Queue            string `json:"queue"`
	QueueSubmissions int64  `json:"queue_submissions"`
	ActiveEngines    int    `json:"active_engines"`
	Goroutines       int    `json:"goroutines"`
	GoVersion        string `json:"go_version"`
}

// Health godoc
// GET /health
// Reports 200 when every backing service answers, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(h.startTime)),
		Database:   "ok",
		Queue:      "ok",
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
	if h.engines != nil {
		report.ActiveEngines = h.engines.Len()
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Database ping failed")
			report.Database = "unavailable"
			report.Status = "degraded"
		}
	}
	if h.queue != nil {
		n, err := h.queue.Len(ctx, config.WorkerKey.PersistSubmissionsQueue)
		if err != nil {
			h.log.Warn().Err(err).Msg("Queue length failed")
			report.Queue = "unavailable"
			report.Status = "degraded"
		}
		report.QueueSubmissions = n
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}

func formatDuration(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
