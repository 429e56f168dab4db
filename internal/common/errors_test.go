package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestProviderErrors_KeepSentinelAndCause(t *testing.T) {
	err := ProviderTimeout("gemini call", context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrProviderTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{InvalidInput("image is empty"), codes.InvalidArgument},
		{NotFound("record %s", "x"), codes.NotFound},
		{ProviderUnavailable("down", errors.New("503")), codes.Unavailable},
		{ProviderTimeout("slow", nil), codes.DeadlineExceeded},
		{ProviderEmpty("no text"), codes.FailedPrecondition},
		{fmt.Errorf("extract: %w", InvalidInput("bad")), codes.InvalidArgument},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(ToStatus(tt.err)))
		})
	}
	assert.NoError(t, ToStatus(nil))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{InvalidInput("bad"), http.StatusBadRequest},
		{NotFound("gone"), http.StatusNotFound},
		{ProviderUnavailable("down", nil), http.StatusBadGateway},
		{ProviderTimeout("slow", nil), http.StatusGatewayTimeout},
		{ProviderEmpty("blank"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.err), "%v", tt.err)
	}
	assert.Equal(t, CodeNotFound, CodeOf(fmt.Errorf("wrapped: %w", NotFound("x"))))
	assert.Equal(t, "INTERNAL", CodeOf(errors.New("plain")))
}
