package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/middleware"
	"github.com/stemsi/speaking-test/internal/model"
	"github.com/stemsi/speaking-test/internal/response"
	"github.com/stemsi/speaking-test/internal/session"
	ws "github.com/stemsi/speaking-test/internal/websocket"
)

const (
	sendBuffer  = 64
	actionWait  = 10 * time.Second
	routeHome   = "/"
	routeResult = "/results"
)

var (
	errClientGone = errors.New("stream client disconnected")
	errClientSlow = errors.New("stream client send buffer full")
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// EngineSource resolves a candidate's engine. Implemented by session.Registry.
type EngineSource interface {
	Get(ctx context.Context, candidateID string) (*session.Engine, error)
}

// WSHandler bridges the candidate's browser and their session engine.
type WSHandler struct {
	engines  EngineSource
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(engines EngineSource, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		engines:  engines,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// TestStream godoc
// WS /ws/v1/test/stream
// Upgrades to WebSocket carrying capture hooks, commands and engine events.
func (h *WSHandler) TestStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	candidateID := claims.CandidateID()

	engine, err := h.engines.Get(c.Request.Context(), candidateID)
	if err != nil {
		h.log.Error().Err(err).Str("candidate_id", candidateID).Msg("Engine unavailable")
		failEngine(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("candidate_id", candidateID).Logger()
	client := newStreamClient(wsLog)
	go client.writePump(conn)
	defer client.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Attach(ctx, client); err != nil {
		wsLog.Error().Err(err).Msg("Attach failed")
		return
	}
	defer func() {
		detachCtx, done := context.WithTimeout(context.Background(), actionWait)
		defer done()
		engine.Detach(detachCtx, client)
	}()

	wsLog.Info().Msg("Candidate connected")
	ws.PrepareRead(conn)

	for {
		env, err := ws.ReadEnvelope(conn)
		if err != nil {
			if errors.Is(err, ws.ErrMalformed) {
				client.push(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if err := h.handleAction(ctx, engine, client, env); err != nil {
			if errors.Is(err, session.ErrClosed) {
				client.push(ws.ErrorResponse{Event: ws.EventError, Error: "session closed"})
				return
			}
			client.push(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
		}
	}
}

// handleAction routes one action to the engine. Refusals reach the client as
// warning events pushed by the engine itself.
func (h *WSHandler) handleAction(ctx context.Context, engine *session.Engine, client *streamClient, env ws.RequestEnvelope) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionWait)
	defer cancel()

	var err error
	switch env.Action {
	case ws.ActionStart:
		_, err = engine.StartRecording(actionCtx)
	case ws.ActionStop:
		_, err = engine.StopRecording(actionCtx)
	case ws.ActionCaptureStarted:
		_, _, err = engine.CaptureStarted(actionCtx)
	case ws.ActionCaptureStopped, ws.ActionArtifactReady:
		var req ws.ArtifactRequest
		if err := env.Decode(&req); err != nil {
			return err
		}
		data, decErr := base64.StdEncoding.DecodeString(req.Audio)
		if decErr != nil {
			return errors.New("audio must be base64")
		}
		a := session.Artifact{CaptureID: session.CaptureID(req.CaptureID), Data: data, MimeType: req.MimeType}
		if env.Action == ws.ActionCaptureStopped {
			_, err = engine.CaptureStopped(actionCtx, a)
		} else {
			_, err = engine.ArtifactReady(actionCtx, a)
		}
	case ws.ActionCaptureError:
		var req ws.CaptureErrorRequest
		if err := env.Decode(&req); err != nil {
			return err
		}
		_, err = engine.CaptureError(actionCtx, req.Error)
	case ws.ActionCaptureReady:
		err = engine.CaptureReady(actionCtx)
	case ws.ActionNext:
		_, err = engine.Next(actionCtx)
	case ws.ActionPrevious:
		_, err = engine.Previous(actionCtx)
	case ws.ActionEnter:
		var req ws.EnterRequest
		if err := env.Decode(&req); err != nil {
			return err
		}
		_, err = engine.EnterPart(actionCtx, req.Part)
	case ws.ActionNotes:
		var req ws.NotesRequest
		if err := env.Decode(&req); err != nil {
			return err
		}
		if !req.Part.Valid() {
			return errors.New(response.GetMessage(response.ErrInvalidPart))
		}
		err = engine.SetNotes(actionCtx, req.Part, req.Notes)
	case ws.ActionReset:
		err = engine.Reset(actionCtx)
	case ws.ActionExit:
		err = engine.Exit(actionCtx)
	case ws.ActionPing:
		client.push(ws.PongResponse{Event: ws.EventPong})
	default:
		h.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		return errors.New("unknown action: " + string(env.Action))
	}
	return err
}

// streamClient implements session.Client over a WebSocket. Engine callbacks
// run on the engine loop, so every push is non-blocking.
type streamClient struct {
	send      chan interface{}
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

func newStreamClient(log zerolog.Logger) *streamClient {
	return &streamClient{
		send: make(chan interface{}, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

func (s *streamClient) push(v interface{}) error {
	select {
	case <-s.done:
		return errClientGone
	default:
	}
	select {
	case s.send <- v:
		return nil
	case <-s.done:
		return errClientGone
	default:
		s.log.Warn().Msg("Stream send buffer full, event dropped")
		return errClientSlow
	}
}

func (s *streamClient) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *streamClient) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case v := <-s.send:
			if err := ws.WriteTyped(conn, v); err != nil {
				s.log.Debug().Err(err).Msg("Write failed")
				s.close()
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				s.close()
				conn.Close()
				return
			}
		}
	}
}

func (s *streamClient) command(cmd string) error {
	return s.push(ws.CaptureCommandResponse{Event: ws.EventCaptureCommand, Command: cmd})
}

func (s *streamClient) Start() error { return s.command(ws.CommandStart) }
func (s *streamClient) Stop() error  { return s.command(ws.CommandStop) }
func (s *streamClient) Clear() error { return s.command(ws.CommandClear) }

func (s *streamClient) GoTo(pos model.Position) {
	index := pos.QuestionIndex
	s.push(ws.NavigateResponse{Event: ws.EventNavigate, Route: pos.Part.Route(), QuestionIndex: &index})
}

func (s *streamClient) GoToResults() {
	s.push(ws.NavigateResponse{Event: ws.EventNavigate, Route: routeResult})
}

func (s *streamClient) GoToHome() {
	s.push(ws.NavigateResponse{Event: ws.EventNavigate, Route: routeHome})
}

func (s *streamClient) CaptureStarted(id session.CaptureID) {
	s.push(ws.CaptureStartedResponse{Event: ws.EventCaptureStarted, CaptureID: uint64(id)})
}

func (s *streamClient) Timer(remaining int) {
	s.push(ws.TimerResponse{Event: ws.EventTimer, Remaining: remaining})
}

func (s *streamClient) Warn(w session.Warning) {
	s.push(ws.WarningResponse{Event: ws.EventWarning, Kind: string(w.Kind), Message: w.Message})
}

func (s *streamClient) State(v session.View) {
	s.push(ws.StateResponse{Event: ws.EventState, View: v})
}
