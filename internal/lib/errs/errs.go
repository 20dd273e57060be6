package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RoutingErrorKind classifies a routing provider failure
type RoutingErrorKind string

const (
	NoRoute    RoutingErrorKind = "NO_ROUTE"
	RateLimit  RoutingErrorKind = "RATE_LIMIT"
	Auth       RoutingErrorKind = "AUTH"
	BadRequest RoutingErrorKind = "BAD_REQUEST"
)

// RoutingError is returned when the routing provider answered but could not produce a route
type RoutingError struct {
	Kind    RoutingErrorKind
	Message string
	Err     error
}

// NewRoutingError creates a RoutingError of the given kind
func NewRoutingError(kind RoutingErrorKind, format string, args ...interface{}) *RoutingError {
	return &RoutingError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing error %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("routing error %s: %s", e.Kind, e.Message)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// GRPCStatus lets the gRPC and gateway layers map routing failures to transport codes
func (e *RoutingError) GRPCStatus() *status.Status {
	var code codes.Code
	switch e.Kind {
	case NoRoute:
		code = codes.NotFound
	case RateLimit:
		code = codes.ResourceExhausted
	case Auth:
		code = codes.PermissionDenied
	case BadRequest:
		code = codes.InvalidArgument
	default:
		code = codes.Unknown
	}
	return status.New(code, e.Error())
}

// ConnectivityError wraps transport failures talking to a network provider
type ConnectivityError struct {
	Op      string
	Timeout bool
	Err     error
}

// NewConnectivityError classifies err as a connectivity failure for op, flagging deadline expiry as a timeout
func NewConnectivityError(op string, err error) *ConnectivityError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &ConnectivityError{Op: op, Timeout: timeout, Err: err}
}

func (e *ConnectivityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) GRPCStatus() *status.Status {
	if e.Timeout {
		return status.New(codes.DeadlineExceeded, e.Error())
	}
	return status.New(codes.Unavailable, e.Error())
}

// SensorError reports a sensor subscription or permission failure. It is never fatal.
type SensorError struct {
	Sensor string
	Err    error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("sensor %s unavailable: %v", e.Sensor, e.Err)
}

func (e *SensorError) Unwrap() error { return e.Err }

func (e *SensorError) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, e.Error())
}

// GeometryError reports malformed route geometry such as an undecodable polyline
type GeometryError struct {
	Input string
	Err   error
}

func (e *GeometryError) Error() string {
	input := e.Input
	if len(input) > 32 {
		input = input[:32] + "..."
	}
	return fmt.Sprintf("malformed geometry %q: %v", input, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

func (e *GeometryError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// IsRetryable reports whether the operation that produced err may succeed if repeated
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		return true
	}
	var routeErr *RoutingError
	if errors.As(err, &routeErr) {
		return routeErr.Kind == RateLimit
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Code returns the gRPC code for err, looking through wrapped errors
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var withStatus interface{ GRPCStatus() *status.Status }
	if errors.As(err, &withStatus) {
		return withStatus.GRPCStatus().Code()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	return status.Code(err)
}

// HTTPStatus maps err to the HTTP status the gateway would use for it
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return runtime.HTTPStatusFromCode(Code(err))
}
