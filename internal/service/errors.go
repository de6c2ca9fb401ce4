package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// Matchmaking errors
var (
	ErrNoMatch          = errors.New("No match found. Please try again.")
	ErrAlreadyActive    = errors.New("a search or session is already active")
	ErrNotConnected     = errors.New("not connected to a stranger")
	ErrSkipCooldown     = errors.New("please wait before skipping again")
	ErrTooManyInterests = errors.New("too many interests")
	ErrInvalidCommType  = errors.New("invalid communication type")
	ErrSearchCancelled  = errors.New("search cancelled")
)

// Session errors
var (
	ErrConnectionLost = errors.New("Connection lost. Please skip to find a new match.")
	ErrNoMedia        = errors.New("no local media for this session")
)

// Chat errors
var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrRateLimited    = errors.New("rate_limited")
	ErrMessageBlocked = errors.New("message blocked")
)

// Report errors
var (
	ErrNoActiveMatch = errors.New("no active match to report")
	ErrSelfTarget    = errors.New("cannot target yourself")
)
