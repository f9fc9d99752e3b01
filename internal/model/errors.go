package model

import "errors"

var (
	// ErrSessionExists is returned when a session ID is already registered.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSecret is returned when a join supplies a wrong or missing password.
	ErrInvalidSecret = errors.New("invalid password")

	// ErrAlreadyMember is returned when a connection joins a session it is already a client of.
	// Callers treat it as a silent success.
	ErrAlreadyMember = errors.New("already a member of session")

	// ErrSessionIDRequired is returned when a session ID is empty.
	ErrSessionIDRequired = errors.New("session id is required")

	// ErrAlreadyAssigned is returned when a connection that belongs to a live session
	// tries to create or join another one.
	ErrAlreadyAssigned = errors.New("connection already in a session")
)
