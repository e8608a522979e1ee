// Package repository contains thin data-access structs over *sql.DB. The
// sentinel values here let handlers distinguish failure scenarios without
// string-matching driver errors: ErrEmailExists maps to 409 on registration,
// ErrInsufficientStock to 409 on reservation, ErrNotFound to 404 and
// ErrConflict to 409 on state transitions that no longer apply.
package repository

import "errors"

var (
	// ErrEmailExists is returned when an insert hits the unique email index.
	ErrEmailExists = errors.New("email already exists")
	// ErrNotFound is returned when a lookup matches no live row.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when a reservation asks for more units
	// than a variant has available.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict is returned when a state transition is no longer valid,
	// such as confirming a reservation that already expired.
	ErrConflict = errors.New("conflict")
)
