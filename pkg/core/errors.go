package core

import "errors"

var (
	// ErrConfiguration marks requested sizes or capabilities that the
	// run cannot satisfy: sample counts exceeding the dataset, shot
	// counts exceeding the query pool, or a model that lacks the
	// likelihood capability.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrAlignment marks a failed token-alignment lookup: the query
	// prefix never occurs in the scored token sequence, so no scoring
	// offset is defined.
	ErrAlignment = errors.New("prompt tokens not found in scored sequence")
)
