package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestRoutingError_Codes(t *testing.T) {
	tests := []struct {
		kind  RoutingErrorKind
		code  codes.Code
		http  int
		retry bool
	}{
		{NoRoute, codes.NotFound, http.StatusNotFound, false},
		{RateLimit, codes.ResourceExhausted, http.StatusTooManyRequests, true},
		{Auth, codes.PermissionDenied, http.StatusForbidden, false},
		{BadRequest, codes.InvalidArgument, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("failed to fetch routes: %w", NewRoutingError(tt.kind, "test"))
			assert.Equal(t, tt.code, Code(err))
			assert.Equal(t, tt.http, HTTPStatus(err))
			assert.Equal(t, tt.retry, IsRetryable(err))
		})
	}
}

func TestConnectivityError_TimeoutIsRetryable(t *testing.T) {
	err := NewConnectivityError("directions request", context.DeadlineExceeded)
	assert.True(t, err.Timeout)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, codes.DeadlineExceeded, Code(err))
	assert.Contains(t, err.Error(), "timed out")

	err = NewConnectivityError("directions request", errors.New("connection refused"))
	assert.False(t, err.Timeout)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, codes.Unavailable, Code(err))
}

func TestSensorAndGeometryErrors(t *testing.T) {
	sensorErr := &SensorError{Sensor: "accelerometer", Err: errors.New("permission denied")}
	assert.False(t, IsRetryable(sensorErr))
	assert.Equal(t, codes.FailedPrecondition, Code(sensorErr))

	geomErr := &GeometryError{Input: "this-is-a-very-long-polyline-string-that-gets-truncated", Err: errors.New("bad")}
	assert.Contains(t, geomErr.Error(), "...")
	assert.Equal(t, codes.InvalidArgument, Code(geomErr))
}

func TestCode_Plain(t *testing.T) {
	assert.Equal(t, codes.OK, Code(nil))
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, codes.Unknown, Code(errors.New("boom")))
	assert.Equal(t, codes.Canceled, Code(context.Canceled))
}
