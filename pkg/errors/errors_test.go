package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesPredefinedByCode(t *testing.T) {
	clone := Clone(ErrInvalidState, "join request already approved")
	wrapped := fmt.Errorf("approve: %w", clone)

	assert.True(t, errors.Is(wrapped, ErrInvalidState))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.Equal(t, "join request already approved", clone.Message)
	assert.Equal(t, "request already processed", ErrInvalidState.Message)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	typed := FromError(fmt.Errorf("ctx: %w", ErrHalaqaFull))
	assert.Equal(t, ErrHalaqaFull.Code, typed.Code)
	assert.Nil(t, FromError(nil))
}
