package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	appValidator "github.com/charlesng35/gotchufam/pkg/validator"
)

func TestFormatValidationError(t *testing.T) {
	require.Equal(t, "invalid request payload", formatValidationError(nil))
	require.Equal(t, "invalid request payload", formatValidationError(errors.New("boom")))
	require.Equal(t, "invalid request payload", formatValidationError(appValidator.ValidationErrors{}))

	msg := formatValidationError(appValidator.ValidationErrors{
		{Field: "display-name", Tag: "required"},
		{Field: "client_id", Tag: "max", Param: "64"},
		{Field: "family", Tag: "oneof", Param: "a b"},
	})
	require.Equal(t, "display name is required; client id must be at most 64 characters; family failed validation: oneof=a b", msg)
}
