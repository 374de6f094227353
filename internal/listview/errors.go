package listview

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNetwork indicates the remote collection could not be reached.
	ErrNetwork = errors.New("listview: network failure")
	// ErrRejected indicates the remote collection answered with a non-success status.
	ErrRejected = errors.New("listview: request rejected")
	// ErrMalformed indicates the remote collection answered with an undecodable body.
	ErrMalformed = errors.New("listview: malformed response")
	// ErrValidation indicates input was refused before any request was made.
	ErrValidation = errors.New("listview: validation failed")
	// ErrCancelled indicates the user declined a confirmation prompt.
	ErrCancelled = errors.New("listview: cancelled by user")
)

// RejectionError carries the status and detail of a rejected remote call.
type RejectionError struct {
	Status int
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("listview: remote returned status %d", e.Status)
	}
	return fmt.Sprintf("listview: remote returned status %d: %s", e.Status, e.Detail)
}

// Is reports RejectionError as ErrRejected.
func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// ValidationError lists field level problems found before submission.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

// Is reports ValidationError as ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// userMessage picks the notification text for a failed operation.
func userMessage(fallback string, err error) string {
	var rejection *RejectionError
	var invalid *ValidationError
	switch {
	case errors.As(err, &invalid):
		return fallback + " " + invalid.Error()
	case errors.As(err, &rejection) && rejection.Detail != "":
		return fallback + " (" + rejection.Detail + ")"
	default:
		return fallback
	}
}
