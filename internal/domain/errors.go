// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested message or agent card does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates malformed input: a missing required field or a
// value outside its enum.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates an illegal message status change.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNoCapableAgent indicates discovery found no card advertising the
// requested capability.
var ErrNoCapableAgent = errors.New("no capable agent")
