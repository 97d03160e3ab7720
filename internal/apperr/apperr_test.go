package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "plain error", err: errors.New("boom"), want: KindUnknown},
		{name: "validation", err: Validation("bad input"), want: KindValidation},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", NotFound("chart not found")), want: KindNotFound},
		{name: "storage with cause", err: Storage("failed to save chart", errors.New("disk full")), want: KindStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("update: %w", NotFound("chart not found"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, Parse("failed to parse spreadsheet", errors.New("zip: not a valid zip file")), ErrParse)
	assert.ErrorIs(t, fmt.Errorf("save: %w", Storage("failed to save chart", errors.New("disk full"))), ErrStorage)
	assert.ErrorIs(t, Unauthenticated("invalid token"), ErrUnauthenticated)
	assert.NotErrorIs(t, Validation("bad input"), ErrParse)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.Status())
	assert.Equal(t, http.StatusBadRequest, KindParse.Status())
	assert.Equal(t, http.StatusUnauthorized, KindUnauthenticated.Status())
	assert.Equal(t, http.StatusForbidden, KindForbidden.Status())
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
	assert.Equal(t, http.StatusInternalServerError, KindUpstream.Status())
	assert.Equal(t, http.StatusInternalServerError, KindStorage.Status())
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "insight generation failed", PublicMessage(Upstream("completion failed", errors.New("401 invalid api key"))))
	assert.Equal(t, "internal server error", PublicMessage(Storage("failed to save chart", errors.New("pq: connection refused"))))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("raw")))
	assert.Equal(t, "cannot modify yourself", PublicMessage(Forbidden("cannot modify yourself")))
}
