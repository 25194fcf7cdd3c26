package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/timmy/gigescrow/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: job x", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: not the client", domain.ErrUnauthorized), http.StatusForbidden},
		{fmt.Errorf("%w: job is completed", domain.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: title is required", domain.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: node down", domain.ErrChainUnavailable), http.StatusBadGateway},
		{fmt.Errorf("%w: reverted", domain.ErrTransactionBuild), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
