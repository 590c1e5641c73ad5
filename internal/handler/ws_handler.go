package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/middleware"
	"github.com/stemsi/bandexam-backend/internal/response"
	"github.com/stemsi/bandexam-backend/internal/service"
	ws "github.com/stemsi/bandexam-backend/internal/websocket"
)

const wsActionTimeout = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
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

// WSHandler streams autosave, pause/resume and submit over one connection.
type WSHandler struct {
	submissions *service.SubmissionService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(submissions *service.SubmissionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		submissions: submissions,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// SubmissionStream godoc
// WS /ws/v1/candidate/submissions/:id/stream
// Upgrades to WebSocket for real-time autosave and instant scoring.
func (h *WSHandler) SubmissionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	// Ownership and status are checked before the upgrade so a plain HTTP
	// error can still be returned.
	sub, err := h.submissions.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if sub.Status.IsTerminal() {
		failService(c, h.log, &service.TransitionError{From: sub.Status, Event: service.EventSaveProgress})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &streamSession{
		h:      h,
		conn:   conn,
		id:     id,
		userID: claims.UserID,
		log: h.log.With().
			Int("user_id", claims.UserID).
			Str("submission_id", id.String()).
			Logger(),
	}
	s.log.Info().Msg("Candidate connected")
	s.run()
}

type streamSession struct {
	h      *WSHandler
	conn   *websocket.Conn
	id     uuid.UUID
	userID int
	log    zerolog.Logger
}

func (s *streamSession) run() {
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(s.conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsActionTimeout)
		done := s.dispatch(ctx, &msg)
		cancel()
		if done {
			return
		}
	}
}

// dispatch handles one message and reports whether the stream is finished.
func (s *streamSession) dispatch(ctx context.Context, msg *ws.RequestPayload) bool {
	switch msg.Action {
	case ws.ActionPing:
		ws.WriteTyped(s.conn, ws.PongResponse{Event: ws.EventPong})
	case ws.ActionAutosave:
		return s.autosave(ctx, msg)
	case ws.ActionPause:
		s.status(ctx, ws.EventPaused, s.h.submissions.Pause)
	case ws.ActionResume:
		s.status(ctx, ws.EventResumed, s.h.submissions.Resume)
	case ws.ActionEvent:
		if _, err := s.h.submissions.ReportEvent(ctx, s.id, s.userID, msg.Kind, msg.Message); err != nil {
			s.fail(err)
			return false
		}
		ws.WriteTyped(s.conn, ws.PongResponse{Event: ws.EventLogged})
	case ws.ActionSubmit:
		sub, err := s.h.submissions.Submit(ctx, s.id, s.userID, msg.Answers)
		if err != nil {
			s.fail(err)
			return false
		}
		s.log.Info().Msg("Submission graded over stream")
		ws.WriteTyped(s.conn, ws.GradedResponse{Event: ws.EventGraded, Status: sub.Status, Scores: sub.Scores})
		return true
	default:
		s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		ws.WriteError(s.conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
	}
	return false
}

// autosave merges the delta and expires the attempt once its time is up.
func (s *streamSession) autosave(ctx context.Context, msg *ws.RequestPayload) bool {
	res, err := s.h.submissions.SaveProgress(ctx, s.id, s.userID, service.ProgressInput{
		Answers:      msg.Answers,
		Cursor:       msg.Cursor,
		ElapsedDelta: msg.ElapsedDelta,
	})
	if err != nil {
		s.fail(err)
		return errors.Is(err, service.ErrNotFound)
	}

	sub := res.Submission
	if sub.RemainingSeconds != nil && *sub.RemainingSeconds == 0 {
		expired, err := s.h.submissions.Expire(ctx, s.id)
		if err == nil {
			ws.WriteTyped(s.conn, ws.GradedResponse{Event: ws.EventExpired, Status: expired.Status, Scores: expired.Scores})
			return true
		}
		s.log.Warn().Err(err).Msg("Expiry on autosave failed")
	}

	ws.WriteTyped(s.conn, ws.SavedResponse{
		Event:                ws.EventSaved,
		ElapsedSeconds:       sub.ElapsedSeconds,
		RemainingSeconds:     sub.RemainingSeconds,
		CompletionPercentage: res.CompletionPercentage,
	})
	return false
}

func (s *streamSession) status(ctx context.Context, ev ws.Event, action ownedAction) {
	sub, err := action(ctx, s.id, s.userID)
	if err != nil {
		s.fail(err)
		return
	}
	ws.WriteTyped(s.conn, ws.StatusResponse{Event: ev, Status: sub.Status, RemainingSeconds: sub.RemainingSeconds})
}

func (s *streamSession) fail(err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Stream action failed")
	}
	msg := response.GetMessage(code)
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Error()
	}
	ws.WriteError(s.conn, string(code), msg)
}
