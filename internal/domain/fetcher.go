package domain

import "context"

// Fetcher resolves an opaque source reference to its raw payload.
type Fetcher interface {
	// Fetch returns the payload for ref. A missing resource is reported as an
	// error wrapping ErrUnavailable.
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Resolver maps a (stage, year) pair to the dataset's source reference.
type Resolver func(stage Stage, year int) string
