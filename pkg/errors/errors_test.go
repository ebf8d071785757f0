package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("run: %w", Clone(ErrPendingGrades, "3 pendencies"))
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrPendingGrades.Code, appErr.Code)
	assert.Equal(t, http.StatusPreconditionFailed, appErr.Status)
	assert.Equal(t, "3 pendencies", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Nil(t, FromError(nil))
}

func TestIsComparesCodes(t *testing.T) {
	clone := WithDetails(ErrCalendarOpen, "ends 2025-12-19", map[string]string{"end": "2025-12-19"})
	assert.True(t, errors.Is(clone, ErrCalendarOpen))
	assert.False(t, errors.Is(clone, ErrPendingGrades))
	assert.NotNil(t, clone.Details)
	assert.Nil(t, ErrCalendarOpen.Details)
}
