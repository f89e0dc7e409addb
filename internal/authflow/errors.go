package authflow

import "errors"

var (
	// ErrUnauthorized is the uniform credential failure: unknown email, wrong
	// password, unapproved user and closed school are indistinguishable to
	// the caller.
	ErrUnauthorized = errors.New("authflow: unauthorized")
	// ErrRefreshRevoked means the refresh token verified cryptographically
	// but has no live server-side record. Forces re-login.
	ErrRefreshRevoked = errors.New("authflow: refresh revoked")
	// ErrAlreadyExists surfaces a duplicate registration.
	ErrAlreadyExists = errors.New("authflow: already exists")
	// ErrSchoolClosed means the school is not accepting registrations.
	ErrSchoolClosed = errors.New("authflow: school not accepting registrations")
	// ErrSchoolNotFound covers registration against an unknown slug.
	ErrSchoolNotFound = errors.New("authflow: school not found")
	// ErrInvalidInput rejects malformed registration input.
	ErrInvalidInput = errors.New("authflow: invalid input")
)
