package storage

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Index is the prime membership index over [0, Bound). Bit i is set iff i is
// prime. An Index is immutable once returned by BuildIndex or LoadIndex and
// may be read from any number of goroutines without locking.
type Index struct {
	bound uint64
	bits  *bitset.BitSet
}

// BuildIndex sieves every integer below bound.
func BuildIndex(bound uint64) (*Index, error) {
	if bound == 0 {
		return nil, fmt.Errorf("index bound must be positive")
	}
	if uint64(uint(bound)) != bound {
		return nil, fmt.Errorf("index bound %d exceeds platform word size", bound)
	}

	n := uint(bound)
	bits := bitset.New(n)
	if bits.Len() != n {
		return nil, fmt.Errorf("allocate index of %d bits failed", bound)
	}
	bits.SetAll()

	// 0 and 1 are never reached by the striking below.
	bits.Clear(0)
	if n > 1 {
		bits.Clear(1)
	}

	for i := uint(2); i*i < n; i++ {
		if !bits.Test(i) {
			continue
		}
		for j := i * i; j < n; j += i {
			bits.Clear(j)
		}
	}

	return &Index{bound: bound, bits: bits}, nil
}

// Bound returns N, the first value the index does not cover.
func (idx *Index) Bound() uint64 {
	return idx.bound
}

// Contains reports whether v is a prime below the bound. Values at or above
// the bound are reported as absent.
func (idx *Index) Contains(v uint64) bool {
	if v >= idx.bound {
		return false
	}
	return idx.bits.Test(uint(v))
}

// Count returns the number of primes below the bound.
func (idx *Index) Count() uint {
	return idx.bits.Count()
}

func (idx *Index) marshal() ([]byte, error) {
	return idx.bits.MarshalBinary()
}

func unmarshalIndex(bound uint64, raw []byte) (*Index, error) {
	bits := &bitset.BitSet{}
	if err := bits.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode index bits: %w", err)
	}
	if uint64(bits.Len()) != bound {
		return nil, fmt.Errorf("index bits cover %d values, header says %d", bits.Len(), bound)
	}
	return &Index{bound: bound, bits: bits}, nil
}
