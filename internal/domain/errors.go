package domain

import "errors"

var (
	// ErrUnavailable marks a dataset reference that does not resolve to data.
	ErrUnavailable = errors.New("dataset unavailable")

	// ErrMalformed marks a payload that could not be decoded.
	ErrMalformed = errors.New("malformed payload")

	// ErrNoData is the terminal state reached when discovery finds nothing.
	ErrNoData = errors.New("no data available")
)
