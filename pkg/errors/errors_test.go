package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsSentinelAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrStoreWrite, cause, "inserting credit %s", "123456")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "123456")
}

func TestWrapNilCause(t *testing.T) {
	assert.NoError(t, Wrap(ErrPublish, nil, "publishing"))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"exists", Wrap(ErrStoreWrite, ErrAlreadyExists, "insert"), http.StatusConflict},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"read", Wrap(ErrStoreRead, errors.New("boom"), "exists"), http.StatusServiceUnavailable},
		{"app error", New(ErrNotFound, http.StatusTeapot, "odd"), http.StatusTeapot},
		{"unknown", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorFormatting(t *testing.T) {
	err := Newf(ErrNotFound, http.StatusNotFound, "no credits found for invoice %s", "7891011")

	assert.Equal(t, "no credits found for invoice 7891011", err.Message)
	assert.Equal(t, "credit not found: no credits found for invoice 7891011", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
}
