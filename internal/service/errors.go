package service

import (
	"errors"
	"fmt"

	"smsdispatch/internal/repository"
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       int64
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
	}
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// InvalidStateError is returned when an action is not allowed from the
// resource's current status
type InvalidStateError struct {
	Resource string
	ID       int64
	Status   string
	Action   string
}

func (e *InvalidStateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("cannot %s %s %d in its current state", e.Action, e.Resource, e.ID)
	}
	return fmt.Sprintf("cannot %s %s %d: status is %s", e.Action, e.Resource, e.ID, e.Status)
}

// InsufficientCreditsError is returned when the balance cannot cover a cost
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// ConflictError represents a conflict error (e.g., duplicate)
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %s: %s", e.Resource, e.Message)
}

// actionError translates repository sentinels for a state-changing action
func actionError(resource string, id int64, action string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return &NotFoundError{Resource: resource, ID: id}
	case errors.Is(err, repository.ErrStateConflict):
		return &InvalidStateError{Resource: resource, ID: id, Action: action}
	default:
		return fmt.Errorf("failed to %s %s: %w", action, resource, err)
	}
}
