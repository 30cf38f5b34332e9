package tahoma

import (
	"errors"
	"fmt"
)

// Error taxonomy of the gateway API. Callers branch with errors.Is; the
// HTTP layer wraps these with request context.
var (
	// ErrNotAuthenticated means the bearer token is invalid or expired.
	// Terminal until credentials are refreshed.
	ErrNotAuthenticated = errors.New("tahoma: not authenticated")
	// ErrGatewayUnreachable covers DNS and transport level failures.
	ErrGatewayUnreachable = errors.New("tahoma: gateway unreachable")
	// ErrGateway is any other non-2xx response from the gateway.
	ErrGateway = errors.New("tahoma: gateway error")
	// ErrInvalidListener means the event listener session expired; the
	// caller must re-register, this is not fatal.
	ErrInvalidListener = errors.New("tahoma: invalid event listener")
	// ErrExecutionQueueFull means the gateway command queue is saturated;
	// the command may be retried with backoff.
	ErrExecutionQueueFull = errors.New("tahoma: execution queue full")
	// ErrUnknownDevice means the deviceURL is stale or unknown.
	ErrUnknownDevice = errors.New("tahoma: unknown device")

	// ErrAddressCollision means two remote ids derived the same local
	// address. The colliding unit is skipped, never overwritten.
	ErrAddressCollision = errors.New("tahoma: address collision")
	// ErrUnknownUnit means no unit with the given local address exists.
	ErrUnknownUnit = errors.New("tahoma: unknown unit")
	// ErrUnsupportedIntent means the unit's capability profile does not
	// support the requested intent.
	ErrUnsupportedIntent = errors.New("tahoma: unsupported intent")
	// ErrConnectivity is raised by the synchronizer once the listener
	// re-registration ceiling is exhausted.
	ErrConnectivity = errors.New("tahoma: gateway connectivity fault")
)

// apiError is the JSON error body returned by the gateway on failures.
type apiError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"error"`
}

// sentinelForResponse maps a failed HTTP response to the taxonomy. The
// gateway reports listener expiry and queue saturation through errorCode
// rather than distinct status codes.
func sentinelForResponse(statusCode int, apiErr apiError) error {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrNotAuthenticated
	case apiErr.ErrorCode == "UNSPECIFIED_ERROR" && containsListenerError(apiErr.Message):
		return ErrInvalidListener
	case apiErr.ErrorCode == "NO_REGISTERED_EVENT_LISTENER":
		return ErrInvalidListener
	case apiErr.ErrorCode == "EXEC_QUEUE_FULL":
		return ErrExecutionQueueFull
	case statusCode == 404:
		return ErrUnknownDevice
	default:
		return fmt.Errorf("%w: httpStatus=%d %s %s", ErrGateway, statusCode, apiErr.ErrorCode, apiErr.Message)
	}
}

func containsListenerError(message string) bool {
	return message == "Invalid event listener id" || message == "No registered event listener"
}
