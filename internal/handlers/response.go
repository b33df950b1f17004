package handlers

import (
	"errors"
	"log"
	"net/http"

	"task-assign/backend/internal/services"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"message": message, "data": data})
}

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindReference, services.KindImmutable:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError writes the error envelope. Storage failures are logged and their
// cause is not sent to the client.
func handleServiceError(c *gin.Context, err error) {
	var appErr *services.Error
	if !errors.As(err, &appErr) {
		appErr = &services.Error{Kind: services.KindStorage, Message: "storage failure", Err: err}
	}

	status := statusForKind(appErr.Kind)
	if status == http.StatusInternalServerError {
		log.Printf("[http] Error serving %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		respond(c, status, "internal server error", nil)
		return
	}

	var data interface{}
	if len(appErr.Fields) > 0 {
		data = appErr.Fields
	}
	respond(c, status, appErr.Message, data)
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, message, nil)
}
