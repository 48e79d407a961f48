package apperrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripeErrorBody_Types(t *testing.T) {
	require.Equal(t, ErrorTypeInvalidRequest, NewValidationError("bad", nil).StripeErrorBody().Type)
	require.Equal(t, ErrorTypeAuthError, NewUnauthorizedError("no token").StripeErrorBody().Type)
	require.Equal(t, ErrorTypeAuthError, NewForbiddenError("nope").StripeErrorBody().Type)
	require.Equal(t, ErrorTypeAPIError, NewInternalError("boom").StripeErrorBody().Type)
	require.Equal(t, ErrorTypeAPIError, NewBadGatewayError(ErrorCodeSonosUnreachable, "down", nil).StripeErrorBody().Type)
}

func TestNewNotFoundResource(t *testing.T) {
	err := NewNotFoundResource("instance", "dial-1")
	require.Equal(t, 404, err.StatusCode)
	require.Equal(t, "instance not found: dial-1", err.Message)
	require.Equal(t, "dial-1", err.Details["id"])
}

func TestEnsureAppError(t *testing.T) {
	original := NewValidationError("bad limit", nil)
	wrapped := fmt.Errorf("parse: %w", original)

	require.Same(t, original, EnsureAppError(wrapped))
	require.Equal(t, ErrorCodeInternalError, EnsureAppError(fmt.Errorf("plain")).Code)
	require.Equal(t, ErrorCodeInternalError, EnsureAppError(nil).Code)
}
