package database

import "errors"

var (
	// ErrRunNotFound is returned when no stored audit run matches.
	ErrRunNotFound = errors.New("audit run not found")

	// ErrDatabaseNotFound is returned by Open when the database file does
	// not exist and creation was not requested.
	ErrDatabaseNotFound = errors.New("database not found")
)
