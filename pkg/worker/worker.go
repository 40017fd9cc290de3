package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/screa/rangecrack/pkg/types"
)

// ErrCandidateTooWide is returned for a range whose values have more digits than
// the configured candidate width.
var ErrCandidateTooWide = errors.New("range exceeds candidate width")

// Attempts are published to the shared counter and the context is polled once per
// batch.
const batchSize = 1024

var one = big.NewInt(1)

// Worker scans ranges for a candidate whose digest equals the target
type Worker struct {
	config   *types.SearchConfig
	attempts *int64
	found    *types.FoundFlag
	hasher   hash.Hash
	pending  int64

	// Pre-allocated buffers for performance
	candBuf []byte // exactly Width bytes
	numBuf  []byte // unpadded decimal digits
	sumBuf  []byte
}

// NewWorker creates a new worker instance. A Worker is not safe for concurrent use;
// tasks running in parallel share only attempts and found.
func NewWorker(config *types.SearchConfig, attempts *int64, found *types.FoundFlag) *Worker {
	h := config.NewHash()
	return &Worker{
		config:   config,
		attempts: attempts,
		found:    found,
		hasher:   h,
		candBuf:  make([]byte, config.Width),
		numBuf:   make([]byte, 0, 32),
		sumBuf:   make([]byte, 0, h.Size()),
	}
}

// Scan checks every value of r in ascending order, stopping early once the found
// flag is set by this or any other task. It returns ErrCandidateTooWide without
// scanning when the range does not fit the candidate width, and ctx.Err() if the
// context is cancelled mid-scan.
func (w *Worker) Scan(ctx context.Context, r types.Range) error {
	last := r.End
	if w.config.ExclusiveEnd {
		last = new(big.Int).Sub(r.End, one)
	}
	if last.Cmp(r.Start) < 0 {
		return nil
	}
	if digits := len(last.Text(10)); digits > w.config.Width {
		return fmt.Errorf("%w: %s has %d digits, width is %d", ErrCandidateTooWide, last, digits, w.config.Width)
	}

	defer w.flush()
	if r.Start.IsUint64() && last.IsUint64() {
		return w.scanUint64(ctx, r.Start.Uint64(), last.Uint64())
	}
	return w.scanBig(ctx, r.Start, last)
}

func (w *Worker) scanUint64(ctx context.Context, start, last uint64) error {
	for i := start; ; i++ {
		if w.found.IsSet() {
			return nil
		}
		w.numBuf = strconv.AppendUint(w.numBuf[:0], i, 10)
		if w.check() {
			return nil
		}
		if i == last {
			return nil
		}
		if err := w.tick(ctx); err != nil {
			return err
		}
	}
}

func (w *Worker) scanBig(ctx context.Context, start, last *big.Int) error {
	cursor := new(big.Int).Set(start)
	for ; cursor.Cmp(last) <= 0; cursor.Add(cursor, one) {
		if w.found.IsSet() {
			return nil
		}
		w.numBuf = cursor.Append(w.numBuf[:0], 10)
		if w.check() {
			return nil
		}
		if err := w.tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// check pads numBuf into candBuf and reports whether it matched.
func (w *Worker) check() bool {
	candidate := w.pad(w.numBuf)
	w.pending++
	if !w.Matches(candidate) {
		return false
	}
	w.found.TrySet(string(candidate))
	return true
}

func (w *Worker) tick(ctx context.Context) error {
	if w.pending < batchSize {
		return nil
	}
	w.flush()
	return ctx.Err()
}

func (w *Worker) flush() {
	if w.pending > 0 && w.attempts != nil {
		atomic.AddInt64(w.attempts, w.pending)
	}
	w.pending = 0
}

func (w *Worker) pad(digits []byte) []byte {
	n := len(w.candBuf) - len(digits)
	for k := 0; k < n; k++ {
		w.candBuf[k] = '0'
	}
	copy(w.candBuf[n:], digits)
	return w.candBuf
}

// Matches hashes candidate and compares it to the target digest
func (w *Worker) Matches(candidate []byte) bool {
	w.hasher.Reset()
	w.hasher.Write(candidate)
	sum := w.hasher.Sum(w.sumBuf[:0])
	return bytes.Equal(sum, w.config.Target)
}

// FormatCandidate renders i as a decimal string zero-padded to width.
func FormatCandidate(i *big.Int, width int) (string, error) {
	if i.Sign() < 0 {
		return "", fmt.Errorf("negative candidate %s", i)
	}
	digits := i.Text(10)
	if len(digits) > width {
		return "", fmt.Errorf("%w: %s has %d digits, width is %d", ErrCandidateTooWide, digits, len(digits), width)
	}
	return strings.Repeat("0", width-len(digits)) + digits, nil
}
