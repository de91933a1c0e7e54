// Package apperr defines the error kinds shared by the orchestration packages.
//
// Components wrap one of the sentinels with context:
//
//	return fmt.Errorf("%w: meeting %s", apperr.ErrNotFound, id)
//
// and the HTTP layer maps the kind to a status code and a machine-readable
// name with Kind and HTTPStatus.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation indicates a missing or malformed required field.
	ErrValidation = errors.New("validation error")

	// ErrConflict indicates a booking overlaps an existing meeting.
	ErrConflict = errors.New("time slot conflict")

	// ErrForbidden indicates the requester may not perform the operation.
	ErrForbidden = errors.New("not authorized")

	// ErrNotFound indicates an unknown meeting or job id.
	ErrNotFound = errors.New("not found")

	// ErrConnection indicates the recording agent could not be reached.
	ErrConnection = errors.New("recording agent unreachable")

	// ErrCommand indicates the recording agent rejected a command.
	ErrCommand = errors.New("recording command failed")

	// ErrSubmission indicates a transcription submission failed.
	ErrSubmission = errors.New("transcription submission failed")

	// ErrLookup indicates a transcription status lookup failed.
	ErrLookup = errors.New("transcription lookup failed")

	// ErrSync indicates a document store write failed.
	ErrSync = errors.New("document sync failed")
)

var kinds = []struct {
	err    error
	name   string
	status int
}{
	{ErrValidation, "validation_error", http.StatusBadRequest},
	{ErrConflict, "conflict_error", http.StatusConflict},
	{ErrForbidden, "authorization_error", http.StatusForbidden},
	{ErrNotFound, "not_found_error", http.StatusNotFound},
	{ErrConnection, "connection_error", http.StatusInternalServerError},
	{ErrCommand, "command_error", http.StatusInternalServerError},
	{ErrSubmission, "submission_error", http.StatusInternalServerError},
	{ErrLookup, "lookup_error", http.StatusInternalServerError},
	{ErrSync, "sync_error", http.StatusInternalServerError},
}

// Kind returns the machine-readable kind of err, or "internal_error"
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal_error"
}

// HTTPStatus returns the response status code for err
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
