package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"nil", nil, "", http.StatusOK},
		{"validation", Validation("fee must be positive"), KindValidation, http.StatusBadRequest},
		{"not found", NotFound("slot %s", "09:00"), KindNotFound, http.StatusNotFound},
		{"conflict wrapped twice", fmt.Errorf("booking: %w", Conflict("slot taken")), KindConflict, http.StatusConflict},
		{"authorization", Unauthorized("not your appointment"), KindAuthorization, http.StatusForbidden},
		{"unavailable", fmt.Errorf("%w: write unconfirmed", ErrUnavailable), KindUnavailable, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, KindUnavailable, http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestIsDomain(t *testing.T) {
	assert.True(t, IsDomain(Conflict("x")))
	assert.True(t, IsDomain(NotFound("x")))
	assert.False(t, IsDomain(errors.New("connection reset")))
	assert.False(t, IsDomain(ErrUnavailable))
	assert.Contains(t, Validation("bad %s", "range").Error(), "bad range")
}
