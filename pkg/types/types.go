package types

import (
	"fmt"
	"hash"
	"math/big"
	"sync"
	"sync/atomic"
	"time"
)

// Range is a contiguous span of candidate integers assigned to one search task.
// Endpoints are arbitrary precision; End is inclusive unless the search runs with
// ExclusiveEnd.
type Range struct {
	Start *big.Int
	End   *big.Int
}

// NewRange builds a Range from native integers.
func NewRange(start, end int64) Range {
	return Range{Start: big.NewInt(start), End: big.NewInt(end)}
}

// String renders the range as [start, end].
func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", r.Start, r.End)
}

// Partition is the ordered set of ranges delivered in a single server response.
type Partition []Range

// Outcome is what gets reported to the server at the end of a job.
type Outcome struct {
	Found     bool
	Candidate string
}

// Result represents the outcome of one job's search
type Result struct {
	Outcome
	Ranges   int
	Attempts int64
	Duration time.Duration
}

// SearchConfig contains configuration shared by every search task of a job
type SearchConfig struct {
	// Decoded target digest; compared byte-wise against each candidate's sum.
	Target []byte
	// Candidates are zero-padded to exactly Width decimal digits.
	Width int
	// NewHash returns a fresh hasher per task.
	NewHash func() hash.Hash
	// Treat Range.End as exclusive.
	ExclusiveEnd bool

	Verbose     bool
	LogInterval int // Logging interval in seconds
}

// FoundFlag is the first-match-wins signal shared by the tasks of one job.
// IsSet is lock-free so scanners can poll it per candidate; the candidate slot is
// written at most once, under mu.
type FoundFlag struct {
	set       atomic.Bool
	mu        sync.Mutex
	candidate string
}

// IsSet reports whether some task has already recorded a match.
func (f *FoundFlag) IsSet() bool {
	return f.set.Load()
}

// TrySet records candidate if no match has been recorded yet and reports whether
// this call won.
func (f *FoundFlag) TrySet(candidate string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set.Load() {
		return false
	}
	f.candidate = candidate
	f.set.Store(true)
	return true
}

// Candidate returns the winning candidate, if any.
func (f *FoundFlag) Candidate() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidate, f.set.Load()
}
