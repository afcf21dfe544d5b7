package model

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies a broker session failure by what the caller
// should do about it.
type AuthErrorKind string

const (
	// KindNeedsOneTimeCode means a new activation with a fresh TOTP is required.
	KindNeedsOneTimeCode AuthErrorKind = "needs_one_time_code"
	// KindUnauthenticated means no access token is held; no request was sent.
	KindUnauthenticated AuthErrorKind = "unauthenticated"
	// KindTokenExpired means the access token is past expiry and cannot be renewed.
	KindTokenExpired AuthErrorKind = "token_expired"
	// KindNetwork covers timeouts, refused connections and DNS failures.
	KindNetwork AuthErrorKind = "network_error"
	// KindMalformedResponse is a 200 response with an empty or non-JSON body.
	KindMalformedResponse AuthErrorKind = "malformed_response"
	// KindEdgeRejected is an HTML page returned by a gateway instead of JSON.
	KindEdgeRejected AuthErrorKind = "edge_rejected"
	// KindAPIRejected is a well-formed failure envelope from the broker.
	KindAPIRejected AuthErrorKind = "api_rejected"
)

// Sentinels for errors.Is. Only Kind (and Code, when set) take part in matching.
var (
	ErrNeedsOneTimeCode  = &AuthError{Kind: KindNeedsOneTimeCode}
	ErrUnauthenticated   = &AuthError{Kind: KindUnauthenticated}
	ErrTokenExpired      = &AuthError{Kind: KindTokenExpired}
	ErrNetwork           = &AuthError{Kind: KindNetwork}
	ErrMalformedResponse = &AuthError{Kind: KindMalformedResponse}
	ErrEdgeRejected      = &AuthError{Kind: KindEdgeRejected}
	ErrAPIRejected       = &AuthError{Kind: KindAPIRejected}

	// ErrNoRefreshToken is returned by a refresh attempt when the client
	// holds no refresh token.
	ErrNoRefreshToken = &AuthError{
		Kind:                KindNeedsOneTimeCode,
		Code:                "no_refresh_token",
		Message:             "no refresh token available",
		RequiresOneTimeCode: true,
	}
)

// AuthError is the single error type returned by the broker client and the
// session manager.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	// Code is the broker's errorcode field, when it sent one.
	Code       string
	StatusCode int
	// SupportID is extracted from edge rejection pages and is safe to show
	// to end users.
	SupportID           string
	RequiresOneTimeCode bool
	// Detail holds an operator-facing excerpt of the raw response.
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.SupportID != "" {
		msg += fmt.Sprintf(" [support id %s]", e.SupportID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another *AuthError of the same kind. A target carrying a Code
// also requires the codes to agree.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NeedsOneTimeCode wraps cause into a NeedsOneTimeCode error.
func NeedsOneTimeCode(message string, cause error) *AuthError {
	return &AuthError{
		Kind:                KindNeedsOneTimeCode,
		Message:             message,
		RequiresOneTimeCode: true,
		Err:                 cause,
	}
}

// RequiresOneTimeCode reports whether err tells the caller to come back with
// a fresh TOTP.
func RequiresOneTimeCode(err error) bool {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.RequiresOneTimeCode || ae.Kind == KindNeedsOneTimeCode || ae.Kind == KindTokenExpired
}

// AsAuthError returns the first *AuthError in err's chain.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	ok := errors.As(err, &ae)
	return ae, ok
}
