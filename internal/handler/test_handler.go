package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/middleware"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/progress"
	"github.com/stemsi/speaking-test/internal/response"
	"github.com/stemsi/speaking-test/internal/service"
	"github.com/stemsi/speaking-test/internal/session"
	"github.com/stemsi/speaking-test/internal/validator"
)

// TestHandler serves the candidate's test API.
type TestHandler struct {
	engines   EngineSource
	questions *service.QuestionService
	archive   *service.ArchiveService
	log       zerolog.Logger
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(
	engines EngineSource,
	questions *service.QuestionService,
	archive *service.ArchiveService,
	log zerolog.Logger,
) *TestHandler {
	return &TestHandler{
		engines:   engines,
		questions: questions,
		archive:   archive,
		log:       log.With().Str("component", "test_handler").Logger(),
	}
}

// GetQuestions godoc
// GET /api/v1/test/questions
func (h *TestHandler) GetQuestions(c *gin.Context) {
	ref := h.questions.Questions()
	response.Success(c, http.StatusOK, gin.H{
		"part1": ref.Questions(model.Part1),
		"part2": ref.Questions(model.Part2),
		"part3": ref.Questions(model.Part3),
	})
}

// GetState godoc
// GET /api/v1/test/state
func (h *TestHandler) GetState(c *gin.Context) {
	engine, ok := h.engine(c)
	if !ok {
		return
	}
	view, err := engine.View(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Next godoc
// POST /api/v1/test/next
// Submits the current answer and moves forward.
func (h *TestHandler) Next(c *gin.Context) {
	h.navigate(c, func(ctx context.Context, e *session.Engine) (*session.Warning, error) {
		return e.Next(ctx)
	})
}

// Previous godoc
// POST /api/v1/test/previous
func (h *TestHandler) Previous(c *gin.Context) {
	h.navigate(c, func(ctx context.Context, e *session.Engine) (*session.Warning, error) {
		return e.Previous(ctx)
	})
}

// Reset godoc
// POST /api/v1/test/reset
// Clears all recordings and notes and returns to part 1.
func (h *TestHandler) Reset(c *gin.Context) {
	h.navigate(c, func(ctx context.Context, e *session.Engine) (*session.Warning, error) {
		return nil, e.Reset(ctx)
	})
}

// Exit godoc
// POST /api/v1/test/exit
func (h *TestHandler) Exit(c *gin.Context) {
	h.navigate(c, func(ctx context.Context, e *session.Engine) (*session.Warning, error) {
		return nil, e.Exit(ctx)
	})
}

// EnterPart godoc
// POST /api/v1/test/parts/:part/enter
func (h *TestHandler) EnterPart(c *gin.Context) {
	var uri model.PartURI
	if fieldErrs := validator.BindURI(c, &uri); fieldErrs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPart, fieldErrs)
		return
	}
	h.navigate(c, func(ctx context.Context, e *session.Engine) (*session.Warning, error) {
		return e.EnterPart(ctx, model.Part(uri.Part))
	})
}

// UpdateNotes godoc
// PUT /api/v1/test/parts/:part/notes
func (h *TestHandler) UpdateNotes(c *gin.Context) {
	var uri model.PartURI
	if fieldErrs := validator.BindURI(c, &uri); fieldErrs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPart, fieldErrs)
		return
	}
	var req model.UpdateNotesRequest
	if fieldErrs := validator.Bind(c, &req); fieldErrs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fieldErrs)
		return
	}
	h.navigate(c, func(ctx context.Context, e *session.Engine) (*session.Warning, error) {
		return nil, e.SetNotes(ctx, model.Part(uri.Part), req.Notes)
	})
}

// ListSubmissions godoc
// GET /api/v1/test/submissions
// Lists the caller's archived submissions with pagination.
func (h *TestHandler) ListSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	subs, pagination, err := h.archive.ListSubmissions(c.Request.Context(), claims.CandidateID(), page, perPage)
	if err != nil {
		h.log.Error().Err(err).Str("candidate_id", claims.CandidateID()).Msg("List submissions failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"submissions": subs}, pagination)
}

// navigate runs fn against the caller's engine and answers with the
// resulting view, or a 409 when the flow refused the action.
func (h *TestHandler) navigate(c *gin.Context, fn func(ctx context.Context, e *session.Engine) (*session.Warning, error)) {
	engine, ok := h.engine(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	warn, err := fn(ctx, engine)
	if err != nil {
		h.fail(c, err)
		return
	}
	if warn != nil {
		response.Refused(c, string(warn.Kind), warn.Message)
		return
	}

	view, err := engine.View(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *TestHandler) engine(c *gin.Context) (*session.Engine, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}
	engine, err := h.engines.Get(c.Request.Context(), claims.CandidateID())
	if err != nil {
		h.log.Error().Err(err).Str("candidate_id", claims.CandidateID()).Msg("Engine unavailable")
		failEngine(c, err)
		return nil, false
	}
	return engine, true
}

func (h *TestHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, progress.ErrInvalidPart):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPart)
	case errors.Is(err, progress.ErrNotesTooLong):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"notes": err.Error()})
	case errors.Is(err, session.ErrClosed):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrSessionClosed)
	default:
		h.log.Error().Err(err).Msg("Test action failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// failEngine maps a failure to obtain an engine onto the response envelope.
func failEngine(c *gin.Context, err error) {
	if errors.Is(err, session.ErrClosed) {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrSessionClosed)
		return
	}
	response.Fail(c, http.StatusServiceUnavailable, response.ErrProgressUnavailable)
}
