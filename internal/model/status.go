package model

import "fmt"

// FileStatus tracks where a file is in the processing pipeline.
type FileStatus string

const (
	StatusPending    FileStatus = "pending"
	StatusProcessing FileStatus = "processing"
	StatusProcessed  FileStatus = "processed"
	StatusFailed     FileStatus = "failed"
)

// nextStates holds every legal transition. Anything not listed here
// is rejected, so a terminal record can never go back to pending or
// processing.
var nextStates = map[FileStatus][]FileStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusFailed},
}

func (s FileStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the pipeline is done with a record.
func (s FileStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanTransition reports whether moving from s to the given status is legal.
func (s FileStatus) CanTransition(to FileStatus) bool {
	for _, n := range nextStates[s] {
		if n == to {
			return true
		}
	}
	return false
}

// TransitionTo mutates the record's status after checking the move is
// legal. Callers must persist the record themselves.
func (f *File) TransitionTo(to FileStatus) error {
	if !f.Status.CanTransition(to) {
		return fmt.Errorf("illegal status transition %s -> %s", f.Status, to)
	}

	f.Status = to
	return nil
}
