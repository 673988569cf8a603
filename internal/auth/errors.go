package auth

import (
	"errors"

	"bookshelf.org/internal/apperr"
)

var (
	// ErrInvalidCredentials is returned for an unknown username and for a wrong
	// password alike.
	ErrInvalidCredentials = apperr.New(apperr.Authentication, "invalid credentials", nil)
	ErrInvalidToken       = apperr.New(apperr.Authentication, "invalid token", nil)
	ErrUserNotFound       = apperr.New(apperr.NotFound, "user not found", nil)

	ErrUsernameTaken = apperr.New(apperr.Validation, "username is already in use", nil)
	ErrEmailTaken    = apperr.New(apperr.Validation, "email is already in use", nil)

	ErrRoleNotFound = errors.New("auth: role not found")
	ErrUserMissing  = errors.New("auth: user must be created before roles are assigned")
)
