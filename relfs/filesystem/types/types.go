package types

import "time"

// CopyRequest identifies one source/destination pair in a batch operation
type CopyRequest struct {
	Source      string
	Destination string
}

// BatchResult contains the outcome of a batch operation
type BatchResult struct {
	Success   bool
	Processed int
	Failed    int
	Duration  time.Duration
	Errors    []error
}
