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

// QuestionHandler handles question bank endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// ListByCourse godoc
// GET /api/v1/instructor/courses/:course_id/questions
// Lists the course's bank questions with pagination, optionally filtered by
// ?topic= and ?difficulty=.
func (h *QuestionHandler) ListByCourse(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	filter, ok := filterQuery(c)
	if !ok {
		return
	}

	questions, pagination, err := h.questionService.ListByCourse(c.Request.Context(), actor, courseID, filter, pageQuery(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questions": questions}, pagination)
}

// GetQuestion godoc
// GET /api/v1/instructor/questions/:question_id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	q, err := h.questionService.Get(c.Request.Context(), actor, questionID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// CreateQuestion godoc
// POST /api/v1/instructor/questions
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questionService.Create(c.Request.Context(), actor, &req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// UpdateQuestion godoc
// PATCH /api/v1/instructor/questions/:question_id
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	var req model.UpdateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questionService.Update(c.Request.Context(), actor, questionID, &req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

func filterQuery(c *gin.Context) (model.QuestionFilter, bool) {
	var filter model.QuestionFilter
	if fields := validator.BindQuery(c, &filter); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return filter, false
	}
	return filter, true
}

// GetBank godoc
// GET /api/v1/instructor/courses/:course_id/questions/bank
// Returns the whole course bank grouped by topic, with the same filters as
// ListByCourse.
func (h *QuestionHandler) GetBank(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}
	filter, ok := filterQuery(c)
	if !ok {
		return
	}

	bank, err := h.questionService.Bank(c.Request.Context(), actor, courseID, filter)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bank": bank})
}

// ListTopics godoc
// GET /api/v1/instructor/courses/:course_id/questions/topics
func (h *QuestionHandler) ListTopics(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	courseID, ok := uuidParam(c, "course_id")
	if !ok {
		return
	}

	topics, err := h.questionService.Topics(c.Request.Context(), actor, courseID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"topics": topics})
}

// DeleteQuestion godoc
// DELETE /api/v1/instructor/questions/:question_id
// Fails with 409 while any exam still includes the question.
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), actor, questionID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
