package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph mutations. Ingestion treats all of them as a
// rejected record and moves on; they only surface to direct callers.
var (
	// ErrSelfLoop rejects an edge whose source and target are the same node
	ErrSelfLoop = errors.New("self-loop edge")

	// ErrKindConflict rejects an upsert whose kind differs from the existing node's
	ErrKindConflict = errors.New("node kind conflict")

	// ErrNodeNotFound rejects an edge or update that names a node not in the graph
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidNode rejects a node with no id, an unknown kind, or mismatched metadata
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidEdge rejects an edge with an unknown kind
	ErrInvalidEdge = errors.New("invalid edge")
)

// DeserializationError reports a persisted payload that can't be turned back
// into a graph. Use errors.As to detect it.
type DeserializationError struct {
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deserializing graph: %s: %v", e.Reason, e.Err)
	}
	return "deserializing graph: " + e.Reason
}

func (e *DeserializationError) Unwrap() error { return e.Err }

func deserializationErr(err error, format string, args ...any) *DeserializationError {
	return &DeserializationError{Reason: fmt.Sprintf(format, args...), Err: err}
}
