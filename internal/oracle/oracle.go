// Package oracle answers primality queries from a precomputed membership index,
// falling back to exact trial division above the index bound.
package oracle

import (
	"primetime/internal/storage"
	"primetime/internal/types"
	"time"
)

// Observer is notified of every answered query. Implementations must be safe
// for concurrent use.
type Observer interface {
	ObserveLookup(path types.LookupPath, elapsed time.Duration)
}

// Oracle is safe for concurrent use; its index is never mutated.
type Oracle struct {
	index    *storage.Index
	observer Observer
}

// New returns an Oracle over idx. observer may be nil.
func New(idx *storage.Index, observer Observer) *Oracle {
	return &Oracle{index: idx, observer: observer}
}

// Bound returns the first value answered by trial division.
func (o *Oracle) Bound() uint64 {
	return o.index.Bound()
}

// Classify reports which path IsPrime takes for value.
func (o *Oracle) Classify(value int64) types.LookupPath {
	switch {
	case value <= 1:
		return types.PathTrivial
	case uint64(value) < o.index.Bound():
		return types.PathIndex
	default:
		return types.PathFallback
	}
}

// IsPrime reports whether value is prime. Values at or above the index bound
// are answered by trial division, which is exact but unbounded in latency and
// cannot be interrupted; call it from a compute worker, not a connection
// handler.
func (o *Oracle) IsPrime(value int64) bool {
	path := o.Classify(value)
	start := time.Now()

	var prime bool
	switch path {
	case types.PathTrivial:
		prime = false
	case types.PathIndex:
		prime = o.index.Contains(uint64(value))
	default:
		prime = TrialDivision(value)
	}

	if o.observer != nil {
		o.observer.ObserveLookup(path, time.Since(start))
	}
	return prime
}

// TrialDivision is the exact fallback test. A divisor in [2, value/2] exists
// iff one exists in [2, sqrt(value)], so the search stops at the square root.
func TrialDivision(value int64) bool {
	if value <= 1 {
		return false
	}
	if value < 4 {
		return true
	}
	if value%2 == 0 {
		return false
	}
	n := uint64(value)
	// d <= n/d avoids overflowing d*d near MaxInt64.
	for d := uint64(3); d <= n/d; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
