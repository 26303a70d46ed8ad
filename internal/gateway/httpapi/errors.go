package httpapi

import (
	"errors"
	"net/http"

	"github.com/flapvw/vlinker-go/pkg/connmgr"
)

// ValidationError reports malformed input: a bad profile name, hex string,
// or request body. It maps to HTTP 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ForbiddenError reports a destructive operation attempted without
// force=true. It maps to HTTP 403.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// NotFoundError reports a request referring to a resource that doesn't
// exist. It maps to HTTP 404. No handler in this package returns it: an
// unknown ecu name is not checked, and a missing capture file is reported
// as a ValidationError.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// statusFor translates the error taxonomy into the stable HTTP status
// codes the adapter promises: 400 for ValidationError/NotConnected, 403 for
// Forbidden, 404 for missing resources, 500 for anything else (unexpected
// transport/IO failures).
func statusFor(err error) int {
	var validation *ValidationError
	var forbidden *ForbiddenError
	var notFound *NotFoundError
	var notConnected *connmgr.NotConnectedError
	var alreadyConnected *connmgr.AlreadyConnectedError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notConnected):
		return http.StatusBadRequest
	case errors.As(err, &alreadyConnected):
		return http.StatusBadRequest
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
