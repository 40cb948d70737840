package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/gotchufam/pkg/errors"
)

const (
	StatusOK    = "ok"
	StatusError = "err"
)

// ErrorBody is the payload written for failed API calls.
type ErrorBody struct {
	Status  string `json:"status"`
	ErrorID string `json:"error_id"`
	Message string `json:"message,omitempty"`
}

// OK writes {"status":"ok"} merged with the supplied fields.
func OK(c *gin.Context, fields gin.H) {
	body := gin.H{"status": StatusOK}
	for key, value := range fields {
		if key == "status" {
			continue
		}
		body[key] = value
	}
	c.JSON(http.StatusOK, body)
}

// Error writes an error body derived from an AppError. Non-AppErrors become 500s
// and their details are not exposed.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if appErr.Internal != nil {
		_ = c.Error(appErr.Internal)
	}

	c.JSON(status, ErrorBody{
		Status:  StatusError,
		ErrorID: appErr.Code,
		Message: appErr.Message,
	})
}
