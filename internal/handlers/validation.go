package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/gotchufam/pkg/errors"
	appValidator "github.com/charlesng35/gotchufam/pkg/validator"
)

// bindForm binds url-encoded or multipart fields into dest and runs struct validation
// rules. The returned AppError carries a user-facing message.
func bindForm[T any](c *gin.Context, dest *T) *appErrors.AppError {
	if err := c.ShouldBind(dest); err != nil {
		return appErrors.NewBadRequest("invalid form payload")
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		return appErrors.NewBadRequest(formatValidationError(err))
	}

	return nil
}

func formatValidationError(err error) string {
	if err == nil {
		return "invalid request payload"
	}

	if ve, ok := err.(appValidator.ValidationErrors); ok {
		if len(ve) == 0 {
			return "invalid request payload"
		}

		messages := make([]string, 0, len(ve))
		for _, failure := range ve {
			field := prettifyFieldName(failure.Field)
			switch failure.Tag {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", field))
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s characters", field, failure.Param))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
			default:
				if failure.Param != "" {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
				} else {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
				}
			}
		}
		return strings.Join(messages, "; ")
	}

	return "invalid request payload"
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.ToLower(name)
}
