package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeDataLoad, "roster unreachable", nil)
	assert.Equal(t, "data_load_failed: roster unreachable", appErr.Error())
}

func TestAppError_UnwrapAndAs(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := NewAppError(ErrCodeLedgerRead, "failed to read send log", underlying)
	wrapped := fmt.Errorf("dispatch: %w", appErr)

	assert.ErrorIs(t, wrapped, underlying)
	assert.Equal(t, ErrCodeLedgerRead, CodeOf(wrapped))
	assert.Equal(t, ErrCodeInternalUnexpected, CodeOf(errors.New("plain")))
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeValidationInvalidDate: http.StatusBadRequest,
		ErrCodeLockUnavailable:       http.StatusConflict,
		ErrCodeUpstreamRateLimited:   http.StatusBadGateway,
		ErrCodeDataLoad:              http.StatusInternalServerError,
		ErrorCode("made_up"):         http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, code.HTTPStatus(), string(code))
	}
}

func TestNewAppErrorWithDetails(t *testing.T) {
	appErr := NewAppErrorWithDetails(ErrCodeDataMalformedRow, "bad row", nil, map[string]any{"row": 3})
	assert.Equal(t, 3, appErr.Details["row"])
}

func TestDataLoadError(t *testing.T) {
	cause := errors.New("403 forbidden")
	err := fmt.Errorf("run: %w", &DataLoadError{Table: "festivals", Occasion: OccasionFestival, Err: cause})

	assert.True(t, IsDataLoadError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "loading festivals table for festival")
	assert.False(t, IsDataLoadError(cause))
}
