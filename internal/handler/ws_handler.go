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
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
	ws "github.com/stemsi/exstem-assess/internal/websocket"
)

// wsOpTimeout bounds the service call behind one client message.
const wsOpTimeout = 5 * time.Second

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

// WSHandler streams an attempt over a WebSocket: autosave, review marks,
// proctoring flags and submit share one connection.
type WSHandler struct {
	attemptService *service.AttemptService
	proctorService *service.ProctorService
	clock          service.Clock
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	attemptService *service.AttemptService,
	proctorService *service.ProctorService,
	clock service.Clock,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		proctorService: proctorService,
		clock:          clock,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:attempt_id/stream?token=...
func (h *WSHandler) AttemptStream(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	// Refuse before upgrading so the client gets a normal HTTP error.
	if _, _, err := h.attemptService.GetPaper(c.Request.Context(), actor, attemptID); err != nil {
		fail(c, h.log, err)
		return
	}
	if actor.Role != model.RoleStudent {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", actor.UserID.String()).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	for {
		raw, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		action, req, err := ws.Decode(raw)
		if err != nil {
			_ = ws.WriteError(conn, string(response.ErrInvalidPayload), err.Error())
			continue
		}

		if done := h.dispatch(conn, wsLog, actor, attemptID, action, req); done {
			return
		}
	}
}

// dispatch handles one client message and reports whether the stream is over.
func (h *WSHandler) dispatch(conn *websocket.Conn, log zerolog.Logger, actor model.Actor, attemptID uuid.UUID, action ws.Action, req any) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()
	now := h.clock.Now()

	switch r := req.(type) {
	case *ws.AutosaveRequest:
		slot, applied, err := h.attemptService.SaveAnswer(ctx, actor, attemptID, &model.SaveAnswerRequest{
			QuestionID:       r.QuestionID,
			Answer:           r.Answer,
			TimeSpentSeconds: r.TimeSpentSeconds,
			Seq:              r.Seq,
		}, now)
		if err != nil {
			return h.writeServiceError(conn, log, err)
		}
		_ = ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionID: slot.QuestionID, Seq: r.Seq, Applied: applied})

	case *ws.ReviewRequest:
		err := h.attemptService.MarkForReview(ctx, actor, attemptID, &model.MarkForReviewRequest{
			QuestionID:      r.QuestionID,
			MarkedForReview: r.MarkedForReview,
		}, now)
		if err != nil {
			return h.writeServiceError(conn, log, err)
		}
		_ = ws.WriteTyped(conn, ws.ReviewedResponse{Event: ws.EventReviewed, QuestionID: r.QuestionID, MarkedForReview: r.MarkedForReview})

	case *ws.FlagRequest:
		flag, err := h.proctorService.RecordFlag(ctx, actor, attemptID, &model.RecordFlagRequest{Type: r.Type, Details: r.Details}, now)
		if err != nil {
			return h.writeServiceError(conn, log, err)
		}
		_ = ws.WriteTyped(conn, ws.FlaggedResponse{Event: ws.EventFlagged, Type: flag.Type})

	case *ws.SubmitRequest:
		if _, err := h.attemptService.Submit(ctx, actor, attemptID, now); err != nil {
			return h.writeServiceError(conn, log, err)
		}
		result, err := h.attemptService.GetResult(ctx, actor, attemptID, now)
		if err != nil {
			return h.writeServiceError(conn, log, err)
		}
		log.Info().Msg("Attempt submitted over stream")
		_ = ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Result: result})
		return true

	default:
		if action == ws.ActionPing {
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		}
	}
	return false
}

// writeServiceError reports err to the client. The stream ends once the
// attempt can no longer take writes.
func (h *WSHandler) writeServiceError(conn *websocket.Conn, log zerolog.Logger, err error) bool {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Stream operation failed")
		msg = response.GetMessage(code)
	}
	_ = ws.WriteError(conn, string(code), msg)
	return errors.Is(err, service.ErrInvalidState)
}
