package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lectureattend/internal/apperrors"
)

// Envelope is the common response body.
type Envelope struct {
	Data  interface{}      `json:"data,omitempty"`
	Error *apperrors.Error `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, Envelope{Data: data})
}

func fail(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		appErr = apperrors.ErrInternal
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, Envelope{Error: appErr})
}
