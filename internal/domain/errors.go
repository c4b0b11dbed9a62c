package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded or is inactive.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrMatchNotFound is returned when a match id resolves to nothing.
	ErrMatchNotFound = errors.New("match not found")
	// ErrInvalidJoinCode is returned when a join code is unknown or expired.
	ErrInvalidJoinCode = errors.New("invalid join code")
	// ErrMatchFull is returned when the roster has reached the type's cap.
	ErrMatchFull = errors.New("match is full")
	// ErrMatchNotJoinable is returned when a match has left the WAITING state.
	ErrMatchNotJoinable = errors.New("match is not joinable")
	// ErrAlreadyInMatch is returned when a user is already on the roster.
	ErrAlreadyInMatch = errors.New("already in match")
	// ErrPlayerNotFound is returned when an action names a user outside the roster.
	ErrPlayerNotFound = errors.New("player not found in match")
	// ErrNotAuthenticated guards every gameplay event before authenticate succeeds.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoAvailableWorker means no live worker could take the match. Terminal.
	ErrNoAvailableWorker = errors.New("no available worker")
	// ErrWorkerUnavailable means the addressed worker did not take the event. Retryable.
	ErrWorkerUnavailable = errors.New("worker unavailable")
	// ErrDirectoryUnavailable is surfaced when the shared directory times out.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
)
