package types

import "errors"

// Domain errors for type validation
var (
	// Candidate errors
	ErrInvalidSongID     = errors.New("invalid song ID")
	ErrInvalidPopularity = errors.New("popularity must be between 0 and 100")
	ErrInvalidSimilarity = errors.New("semantic similarity must be between 0 and 1")
	ErrInvalidFinalScore = errors.New("final score must be a finite number")
)
