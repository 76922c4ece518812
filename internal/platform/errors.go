package platform

import (
	"errors"
	"fmt"
)

// Kind classifies a platform failure so callers can branch without parsing
// provider-specific messages.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindUnavailable    Kind = "unavailable"
	KindRateLimited    Kind = "rate_limited"
	KindUnsupported    Kind = "unsupported"
)

// Error wraps a provider failure with the platform name, the operation that
// failed, and a Kind.
type Error struct {
	Platform string
	Op       string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(platform, op string, kind Kind, err error) *Error {
	return &Error{Platform: platform, Op: op, Kind: kind, Err: err}
}

func kindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsAuthentication(err error) bool {
	return kindOf(err) == KindAuthentication
}

func IsUnavailable(err error) bool {
	return kindOf(err) == KindUnavailable
}

func IsRateLimited(err error) bool {
	return kindOf(err) == KindRateLimited
}

func IsUnsupported(err error) bool {
	return kindOf(err) == KindUnsupported
}

// UnknownPlatformError is returned by the factory for platform names it has
// no client for.
type UnknownPlatformError struct {
	Platform string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("unknown platform: %s", e.Platform)
}

func IsUnknownPlatform(err error) bool {
	var ue *UnknownPlatformError
	return errors.As(err, &ue)
}
