package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrIdeaTooShort        = errors.New("idea description too short")
	ErrAllStagesFailed     = errors.New("all analysis stages failed")
	ErrStageAlreadyRunning = errors.New("stage already running")
	ErrJobTerminal         = errors.New("job already in a terminal state")
	ErrRateLimited         = errors.New("too many submissions")
)
