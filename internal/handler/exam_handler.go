package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
	"github.com/stemsi/exstem-assess/internal/validator"
)

// ExamHandler handles exam authoring and catalogue endpoints.
type ExamHandler struct {
	examService *service.ExamService
	clock       service.Clock
	log         zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, clock service.Clock, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		clock:       clock,
		log:         log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListAvailable godoc
// GET /api/v1/exams/available
// Lists exams students can start right now.
func (h *ExamHandler) ListAvailable(c *gin.Context) {
	exams, err := h.examService.ListAvailable(c.Request.Context(), h.clock.Now())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), actor, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ListMine godoc
// GET /api/v1/instructor/exams
// Lists the caller's exams with pagination.
func (h *ExamHandler) ListMine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	exams, pagination, err := h.examService.ListByInstructor(c.Request.Context(), actor, pageQuery(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// ListByCourse godoc
// GET /api/v1/instructor/courses/:course_id/exams
func (h *ExamHandler) ListByCourse(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}

	exams, pagination, err := h.examService.ListByCourse(c.Request.Context(), actor, courseID, pageQuery(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// CreateExam godoc
// POST /api/v1/instructor/exams
// Creates a new draft exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), actor, &req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UpdateExam godoc
// PATCH /api/v1/instructor/exams/:exam_id
// Edits a draft exam.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), actor, examID, &req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateVisibility godoc
// PATCH /api/v1/instructor/exams/:exam_id/visibility
// Edits result visibility; allowed after publish.
func (h *ExamHandler) UpdateVisibility(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.Visibility
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.UpdateVisibility(c.Request.Context(), actor, examID, req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// AddQuestions godoc
// POST /api/v1/instructor/exams/:exam_id/questions
// Attaches bank questions to a draft exam.
func (h *ExamHandler) AddQuestions(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.AddQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.AddQuestions(c.Request.Context(), actor, examID, req.QuestionIDs)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// RemoveQuestion godoc
// DELETE /api/v1/instructor/exams/:exam_id/questions/:question_id
func (h *ExamHandler) RemoveQuestion(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	exam, err := h.examService.RemoveQuestion(c.Request.Context(), actor, examID, questionID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// PublishExam godoc
// POST /api/v1/instructor/exams/:exam_id/publish
func (h *ExamHandler) PublishExam(c *gin.Context) {
	h.transition(c, func(ctx context.Context, actor model.Actor, examID uuid.UUID) (*model.Exam, error) {
		return h.examService.Publish(ctx, actor, examID, h.clock.Now())
	})
}

// ReleaseResults godoc
// POST /api/v1/instructor/exams/:exam_id/release
// Opens results to students immediately.
func (h *ExamHandler) ReleaseResults(c *gin.Context) {
	h.transition(c, func(ctx context.Context, actor model.Actor, examID uuid.UUID) (*model.Exam, error) {
		return h.examService.ReleaseResults(ctx, actor, examID, h.clock.Now())
	})
}

// ArchiveExam godoc
// POST /api/v1/instructor/exams/:exam_id/archive
func (h *ExamHandler) ArchiveExam(c *gin.Context) {
	h.transition(c, h.examService.Archive)
}

type examTransition func(ctx context.Context, actor model.Actor, examID uuid.UUID) (*model.Exam, error)

func (h *ExamHandler) transition(c *gin.Context, fn examTransition) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	exam, err := fn(c.Request.Context(), actor, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/instructor/exams/:exam_id
// Refused once any attempt exists.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), actor, examID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// GetStatistics godoc
// GET /api/v1/instructor/exams/:exam_id/statistics
func (h *ExamHandler) GetStatistics(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	stats, err := h.examService.Statistics(c.Request.Context(), actor, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"statistics": stats})
}
