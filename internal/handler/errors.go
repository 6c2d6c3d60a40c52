package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/middleware"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
)

// classify maps a service error to an HTTP status and API error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrTokenInvalid):
		return http.StatusUnauthorized, response.ErrTokenInvalid
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, response.ErrTokenRevoked
	case errors.Is(err, service.ErrAuthorization):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusUnprocessableEntity, response.ErrExamNotStarted
	case errors.Is(err, service.ErrExamEnded):
		return http.StatusUnprocessableEntity, response.ErrExamEnded
	case errors.Is(err, service.ErrAttemptLimit):
		return http.StatusConflict, response.ErrAttemptLimit
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict, response.ErrInvalidState
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, response.ErrConflict
	case errors.Is(err, service.ErrUnsupportedFileType):
		return http.StatusBadRequest, response.ErrUnsupportedFile
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, response.ErrFileTooLarge
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes err as an API error. Validation failures carry the service
// message as field detail; unexpected errors are logged and masked.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	switch {
	case status == http.StatusInternalServerError:
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
		response.Fail(c, status, code)
	case code == response.ErrValidation:
		detail := strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
		response.FailWithFields(c, status, code, map[string]string{"detail": detail})
	default:
		response.Fail(c, status, code)
	}
}

// requireActor returns the caller or writes 401.
func requireActor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return actor, ok
}

// uuidParam parses a path parameter or writes 400.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// pageQuery reads ?page=&per_page= with the usual defaults.
func pageQuery(c *gin.Context) service.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	return service.NewPage(page, perPage)
}
