package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound     = "not_found"
	ErrCodePrecondition = "precondition_failed"
	ErrCodeStorage      = "storage_error"
	ErrCodeInconsistent = "inconsistent"
	ErrCodeAlreadyInUse = "already_in_use"
)

var (
	// ErrNotFound is returned when a chat, message or user is absent from the cache.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition is returned when an operation's precondition does not hold,
	// e.g. pairing requested with fewer than two waiting users.
	ErrPrecondition = errors.New("precondition failed")
	// ErrInconsistent is returned when the cache and the store diverge.
	ErrInconsistent = errors.New("cache and store inconsistent")
	// ErrAlreadyInUse is returned when a derived id is already waiting or active.
	ErrAlreadyInUse = errors.New("identifier already in use")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// notFound builds the canonical not-found error for a subject.
func notFound(subject string) *CoreError {
	return &CoreError{Code: ErrCodeNotFound, Message: subject + " not found", Err: ErrNotFound}
}

// storageError wraps a failed store operation.
func storageError(op string, err error) *CoreError {
	return &CoreError{
		Code:    ErrCodeStorage,
		Message: fmt.Sprintf("store %s failed", op),
		Err:     err,
	}
}

// IsStorage reports whether err is a storage failure.
func IsStorage(err error) bool {
	var ce *CoreError
	return errors.As(err, &ce) && ce.Code == ErrCodeStorage
}
