package services

import "errors"

// Ledger service errors
var (
	// Upload errors
	ErrNoFiles      = errors.New("no ledger files uploaded")
	ErrTooManyFiles = errors.New("too many ledger files")
	ErrFileTooLarge = errors.New("ledger file too large")
	ErrEmptyFile    = errors.New("ledger file is empty")
	ErrUnreadable   = errors.New("ledger file could not be read")

	// Request errors
	ErrUnknownGroup = errors.New("unknown grouping key")
)
