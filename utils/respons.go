package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chopwell/chopwell-api/services"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, err error) {
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: err.Error(),
		Data:    nil,
	})
}

// RespondServiceError maps the service error taxonomy to HTTP status codes.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrNoActiveDelivery):
		RespondError(c, http.StatusConflict, err)
	case errors.Is(err, services.ErrDriverUnavailable):
		RespondError(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, services.ErrConflict):
		RespondError(c, http.StatusConflict, err)
	case errors.Is(err, services.ErrInvalidSignature):
		RespondError(c, http.StatusUnauthorized, err)
	case errors.Is(err, services.ErrGateway):
		RespondError(c, http.StatusBadGateway, err)
	case errors.Is(err, services.ErrValidation):
		RespondError(c, http.StatusBadRequest, err)
	default:
		RespondError(c, http.StatusInternalServerError, err)
	}
}
