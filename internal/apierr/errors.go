package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failed backend interaction. Every error leaving the
// transport layer carries exactly one of these.
type Kind int

const (
	KindUnauthenticated Kind = iota // no access token stored, call never left the client
	KindSessionExpired              // token refresh failed, session was cleared
	KindForbidden                   // 403, permission denied
	KindNotFound                    // 404
	KindValidation                  // 4xx with a display message from the backend
	KindServer                      // 5xx or unclassified
	KindUnavailable                 // circuit breaker open or transport failure
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrSessionExpired  = errors.New("session expired")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrServer          = errors.New("server error")
	ErrUnavailable     = errors.New("service unavailable")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindSessionExpired:
		return ErrSessionExpired
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrServer
	}
}

// Error is the transport-level error type. Detail holds the backend's own
// message when the response body carried one.
type Error struct {
	Kind   Kind
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind.sentinel(), e.Detail)
	}
	return e.Kind.sentinel().Error()
}

// Is lets callers match with errors.Is against the kind sentinels.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func New(kind Kind, status int, detail string) *Error {
	return &Error{Kind: kind, Status: status, Detail: detail}
}

// FromStatus maps an HTTP status to the taxonomy. detail comes from the
// response body's "detail" or "error" field when present.
func FromStatus(status int, detail string) *Error {
	switch {
	case status == 403:
		return New(KindForbidden, status, detail)
	case status == 404:
		return New(KindNotFound, status, detail)
	case status >= 400 && status < 500 && detail != "":
		return New(KindValidation, status, detail)
	default:
		return New(KindServer, status, detail)
	}
}

// Detail extracts the backend message from err, or falls back to a generic
// one. Views use this to build user-visible text.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
