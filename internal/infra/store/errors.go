package store

import (
	"errors"
	"strings"
)

var (
	ErrEventNotFound      = errors.New("store: event not found")
	ErrAutomationNotFound = errors.New("store: automation not found")
	ErrAutomationExists   = errors.New("store: automation already exists")
	ErrInvalidActions     = errors.New("store: automation actions must be a non-empty list of commands")
)

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
