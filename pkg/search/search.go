package search

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/screa/rangecrack/pkg/types"
	"github.com/screa/rangecrack/pkg/worker"
)

// Searcher runs one search task per range of a partition
type Searcher struct {
	config   *types.SearchConfig
	logger   zerolog.Logger
	attempts int64
}

// New creates a new searcher. Search calls must not overlap.
func New(cfg *types.SearchConfig, log zerolog.Logger) *Searcher {
	return &Searcher{
		config: cfg,
		logger: log,
	}
}

// Search scans every range of p concurrently and returns only after all tasks have
// stopped. A range that does not fit the candidate width is skipped without
// affecting its siblings. If ctx is cancelled before a match is found the partial
// result is discarded and ctx.Err() is returned.
func (s *Searcher) Search(ctx context.Context, p types.Partition) (*types.Result, error) {
	start := time.Now()
	atomic.StoreInt64(&s.attempts, 0)
	found := &types.FoundFlag{}

	// No sibling cancellation: tasks stop on the found flag or ctx only.
	var g errgroup.Group
	for i, r := range p {
		i, r := i, r // per-iteration copies (go 1.21 loop semantics)
		g.Go(func() error {
			w := worker.NewWorker(s.config, &s.attempts, found)
			err := w.Scan(ctx, r)
			if errors.Is(err, worker.ErrCandidateTooWide) {
				s.logger.Error().Err(err).Int("range", i).Stringer("span", r).Msg("skipping range")
				return nil
			}
			return err
		})
	}

	// Start periodic logging if verbose mode is enabled
	var logTicker *time.Ticker
	var logDone chan bool
	if s.config.Verbose && s.config.LogInterval > 0 {
		logTicker = time.NewTicker(time.Duration(s.config.LogInterval) * time.Second)
		logDone = make(chan bool)
		go s.periodicLogger(logTicker, logDone, start, found)
	}

	err := g.Wait()

	if logTicker != nil {
		logTicker.Stop()
		close(logDone)
	}

	candidate, ok := found.Candidate()
	if !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			return nil, err
		}
	}

	return &types.Result{
		Outcome:  types.Outcome{Found: ok, Candidate: candidate},
		Ranges:   len(p),
		Attempts: atomic.LoadInt64(&s.attempts),
		Duration: time.Since(start),
	}, nil
}

// Attempts returns the number of candidates hashed by the current or last search.
func (s *Searcher) Attempts() int64 {
	return atomic.LoadInt64(&s.attempts)
}

// periodicLogger logs search progress at regular intervals
func (s *Searcher) periodicLogger(ticker *time.Ticker, done chan bool, start time.Time, found *types.FoundFlag) {
	for {
		select {
		case <-ticker.C:
			attempts := atomic.LoadInt64(&s.attempts)
			elapsed := time.Since(start)

			// Calculate rate safely
			rate := 0.0
			if elapsed.Seconds() > 0 {
				rate = float64(attempts) / elapsed.Seconds()
			}

			ev := s.logger.Info().Int64("attempts", attempts).Float64("hashes-per-sec", rate)
			if c, ok := found.Candidate(); ok {
				ev = ev.Str("candidate", c)
			}
			ev.Msg("progress")
		case <-done:
			return
		}
	}
}
