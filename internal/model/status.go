// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// STATUS
// =============================================================================

// StatusKind is the progress state of a step's output.
type StatusKind int

const (
	// StatusActive - the step is still producing its output.
	StatusActive StatusKind = iota

	// StatusDone - the step finished; the value is final.
	StatusDone

	// StatusErrored - the step failed; only the message is meaningful.
	StatusErrored
)

// String returns the string representation of a status kind.
func (k StatusKind) String() string {
	switch k {
	case StatusActive:
		return "Active"
	case StatusDone:
		return "Done"
	case StatusErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Status is a three-state progress wrapper around a step's output. Active
// carries a mutable in-progress value; Done and Errored are terminal.
type Status[T any] struct {
	Kind    StatusKind
	Value   T
	Message string
}

// Active wraps an in-progress value.
func Active[T any](value T) Status[T] {
	return Status[T]{Kind: StatusActive, Value: value}
}

// Done wraps a final value.
func Done[T any](value T) Status[T] {
	return Status[T]{Kind: StatusDone, Value: value}
}

// Errored wraps a failure message.
func Errored[T any](message string) Status[T] {
	return Status[T]{Kind: StatusErrored, Message: message}
}

// Terminal reports whether the status can no longer change.
func (s Status[T]) Terminal() bool {
	return s.Kind == StatusDone || s.Kind == StatusErrored
}

// MapStatus transforms the wrapped value, preserving the state and message.
func MapStatus[T, U any](s Status[T], fn func(T) U) Status[U] {
	out := Status[U]{Kind: s.Kind, Message: s.Message}
	if s.Kind != StatusErrored {
		out.Value = fn(s.Value)
	}
	return out
}
