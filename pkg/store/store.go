// Package store persists published conditions so they can be looked up by
// URI. Only the evidence-free structure of a condition is stored.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/conditions"
)

// ErrNotFound is returned when no condition is stored under a URI.
var ErrNotFound = errors.New("condition not found")

// Record is one published condition.
type Record struct {
	URI       string
	Type      string
	Cost      uint64
	Bin       []byte
	Condition conditions.Condition // structure without evidence
	CreatedAt time.Time
}

// ConditionStore defines persistence of published conditions.
type ConditionStore interface {
	// Put records c. Storing the same condition twice is not an error.
	Put(ctx context.Context, c conditions.Condition) (*Record, error)
	Get(ctx context.Context, uri string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
}
