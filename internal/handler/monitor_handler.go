package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second
)

// MonitorHandler streams live exam activity to instructors over SSE.
type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	attemptService *service.AttemptService
	clock          service.Clock
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	attemptService *service.AttemptService,
	clock service.Clock,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		attemptService: attemptService,
		clock:          clock,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// monitorStats counts attempts by status.
type monitorStats struct {
	InProgress int `json:"in_progress"`
	Submitted  int `json:"submitted"`
	Graded     int `json:"graded"`
	Abandoned  int `json:"abandoned"`
}

func countStatuses(attempts []model.AttemptSummary) monitorStats {
	var s monitorStats
	for _, a := range attempts {
		switch a.Status {
		case model.AttemptStatusInProgress:
			s.InProgress++
		case model.AttemptStatusSubmitted:
			s.Submitted++
		case model.AttemptStatusGraded:
			s.Graded++
		case model.AttemptStatusAbandoned:
			s.Abandoned++
		}
	}
	return s
}

// monitorFeed is the subset of *redis.PubSub the monitor relies on.
type monitorFeed interface {
	Receive(ctx context.Context) (interface{}, error)
	Close() error
}

// attachMonitor waits for the subscription to be confirmed before reading
// the snapshot, so events published while the snapshot is read are still
// delivered on the feed afterwards.
func attachMonitor(
	ctx context.Context,
	feed monitorFeed,
	snapshot func(context.Context) ([]model.AttemptSummary, error),
) ([]model.AttemptSummary, error) {
	if _, err := feed.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe monitor channel: %w", err)
	}
	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	return snapshot(snapCtx)
}

// MonitorExam godoc
// GET /api/v1/instructor/exams/:exam_id/monitor
// Sends a snapshot of the exam's attempts, then relays every notification
// published for the exam until the client disconnects.
func (h *MonitorHandler) MonitorExam(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	exam, err := h.examService.Get(reqCtx, actor, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()

	attempts, err := attachMonitor(reqCtx, pubsub, func(ctx context.Context) ([]model.AttemptSummary, error) {
		return h.attemptService.ListAttempts(ctx, actor, examID, h.clock.Now())
	})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", gin.H{
		"exam": gin.H{
			"id":               exam.ID,
			"title":            exam.Title,
			"status":           exam.Status,
			"duration_minutes": exam.DurationMinutes,
			"total_questions":  len(exam.QuestionIDs),
		},
		"stats":    countStatuses(attempts),
		"attempts": attempts,
	})
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Instructor attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Instructor detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON notifications; relay them verbatim.
			_, _ = c.Writer.Write([]byte("event: notification\ndata: "))
			_, _ = c.Writer.Write([]byte(msg.Payload))
			_, _ = c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAlive.C:
			_, _ = c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}
