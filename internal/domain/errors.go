package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")

	// ErrMemberNotFound is returned when removing a user or system that is
	// not a member of the group.
	ErrMemberNotFound = fmt.Errorf("member %w", ErrNotFound)

	// ErrGroupNotFound, ErrUserNotFound and ErrSystemNotFound name the lookup
	// that failed.
	ErrGroupNotFound  = fmt.Errorf("group %w", ErrNotFound)
	ErrUserNotFound   = fmt.Errorf("user %w", ErrNotFound)
	ErrSystemNotFound = fmt.Errorf("system %w", ErrNotFound)

	// ErrAlreadyMember is returned when adding a user or system that is
	// already a member of the group.
	ErrAlreadyMember = fmt.Errorf("member %w", ErrAlreadyExists)
)

// APIError is the JSON body of an error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
