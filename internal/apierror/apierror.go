// Package apierror defines the errors the relay surfaces to its callers.
// Each carries the HTTP status and the message written to the client.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable label for metrics and logs.
type Kind string

const (
	KindBadRequest  Kind = "bad_request"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindUpstream    Kind = "upstream"
	KindBadGateway  Kind = "bad_gateway"
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
	KindClientGone  Kind = "client_closed"
)

// StatusClientClosedRequest is the non-standard 499 used when the caller
// went away before the relay finished.
const StatusClientClosedRequest = 499

// Error is a client-facing failure. Payload keys are merged into the JSON
// body next to "message".
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Payload map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Body returns the JSON error body: Payload plus "message".
func (e *Error) Body() map[string]interface{} {
	body := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		body[k] = v
	}
	body["message"] = e.Message
	return body
}

func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: message}
}

// Upstream mirrors a non-2xx provider response. The message embeds the
// provider's body verbatim.
func Upstream(status int, provider, body string) *Error {
	return &Error{
		Kind:    KindUpstream,
		Status:  status,
		Message: fmt.Sprintf("%s API Error: %s", provider, body),
	}
}

func BadGateway(message string, cause error) *Error {
	return &Error{Kind: KindBadGateway, Status: http.StatusBadGateway, Message: message, cause: cause}
}

func GatewayTimeout(message string, cause error) *Error {
	return &Error{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: message, cause: cause}
}

func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Status: http.StatusServiceUnavailable, Message: message, cause: cause}
}

// ClientClosed marks a request abandoned by the caller.
func ClientClosed(cause error) *Error {
	return &Error{Kind: KindClientGone, Status: StatusClientClosedRequest, Message: "Client closed request", cause: cause}
}

// From returns err as an *Error. Anything that is not already one becomes a
// 500 with a generic message; the cause is kept for logging.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
		cause:   err,
	}
}
