package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
	"github.com/stemsi/exstem-assess/internal/validator"
)

// ProctorHandler handles proctoring flag endpoints.
type ProctorHandler struct {
	proctorService *service.ProctorService
	clock          service.Clock
	log            zerolog.Logger
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(proctorService *service.ProctorService, clock service.Clock, log zerolog.Logger) *ProctorHandler {
	return &ProctorHandler{
		proctorService: proctorService,
		clock:          clock,
		log:            log.With().Str("component", "proctor_handler").Logger(),
	}
}

// RecordFlag godoc
// POST /api/v1/student/attempts/:attempt_id/flags
func (h *ProctorHandler) RecordFlag(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.RecordFlagRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	flag, err := h.proctorService.RecordFlag(c.Request.Context(), actor, attemptID, &req, h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"flag": flag})
}

// GetSummary godoc
// GET /api/v1/instructor/attempts/:attempt_id/flags
func (h *ProctorHandler) GetSummary(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	attemptID, ok := uuidParam(c, "attempt_id")
	if !ok {
		return
	}

	summary, err := h.proctorService.Summary(c.Request.Context(), actor, attemptID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"proctoring": summary})
}
