package evidence

import "errors"

var (
	// ErrInvalidToken is returned when a scan token is unknown, revoked
	// or carries a bad signature.
	ErrInvalidToken = errors.New("invalid scan token")

	// ErrExpiredToken is returned when a scan token is past its expiry.
	ErrExpiredToken = errors.New("scan token expired")

	// ErrMissingParams is returned when a request lacks a required field.
	ErrMissingParams = errors.New("missing required parameters")

	// ErrMalformedRequest is returned when a request body cannot be decoded.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrSubmit is returned by Client.Submit when evidence could not be
	// delivered.
	ErrSubmit = errors.New("evidence submission failed")
)
