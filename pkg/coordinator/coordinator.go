// Package coordinator drives the worker's job cycle: connect, request ranges,
// search them, report the outcome, disconnect, repeat.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/screa/rangecrack/internal/config"
	"github.com/screa/rangecrack/internal/crypto"
	"github.com/screa/rangecrack/pkg/protocol"
	"github.com/screa/rangecrack/pkg/search"
	"github.com/screa/rangecrack/pkg/transport"
	"github.com/screa/rangecrack/pkg/types"
)

const (
	connectDelay    = 200 * time.Millisecond
	connectMaxDelay = 30 * time.Second
)

// Coordinator runs job cycles against the job server
type Coordinator struct {
	dialer   transport.Dialer
	codec    protocol.Codec
	searcher *search.Searcher
	logger   zerolog.Logger

	parallelism     int
	connectAttempts uint
	retryDelay      time.Duration
	maxJobs         int

	state atomic.Int32
	jobs  atomic.Int64
}

// New creates a coordinator from a validated configuration.
func New(cfg *config.Config, dialer transport.Dialer, log zerolog.Logger) (*Coordinator, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	// Pre-compute the target digest once for the process lifetime
	algo, err := crypto.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	target, err := crypto.ParseTarget(cfg.Target, algo)
	if err != nil {
		return nil, err
	}
	codec := cfg.Codec()
	if err := codec.Validate(); err != nil {
		return nil, err
	}

	searchConfig := &types.SearchConfig{
		Target:       target,
		Width:        cfg.Width,
		NewHash:      algo.New,
		ExclusiveEnd: cfg.ExclusiveEnd,
		Verbose:      cfg.Verbose,
		LogInterval:  cfg.LogInterval,
	}

	return &Coordinator{
		dialer:          dialer,
		codec:           codec,
		searcher:        search.New(searchConfig, log),
		logger:          log,
		parallelism:     cfg.Workers,
		connectAttempts: cfg.ConnectAttempts,
		retryDelay:      cfg.RetryDelay,
		maxJobs:         cfg.MaxJobs,
	}, nil
}

// State returns the current job cycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Jobs returns the number of job cycles started so far.
func (c *Coordinator) Jobs() int64 {
	return c.jobs.Load()
}

func (c *Coordinator) setState(s State, log zerolog.Logger) {
	prev := State(c.state.Swap(int32(s)))
	log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state transition")
}

// Run loops over job cycles until the server has no work left (returns nil), ctx
// is cancelled (returns ctx.Err()) or MaxJobs cycles have run. Connection and
// protocol failures abort only the current cycle.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info().
		Int("parallelism", c.parallelism).
		Int("max-jobs", c.maxJobs).
		Msg("starting worker")

	for c.maxJobs == 0 || c.Jobs() < int64(c.maxJobs) {
		if err := ctx.Err(); err != nil {
			c.logger.Info().Msg("worker shutting down")
			return err
		}

		res, err := c.RunCycle(ctx)
		switch {
		case errors.Is(err, protocol.ErrNoWork):
			c.logger.Info().Msg("no jobs available")
			return nil
		case ctx.Err() != nil:
			c.logger.Info().Msg("worker shutting down")
			return ctx.Err()
		case errors.Is(err, protocol.ErrMalformedRange):
			c.logger.Error().Err(err).Msg("protocol error, job aborted")
		case err != nil:
			c.logger.Warn().Err(err).Msg("job failed")
		}

		if err != nil {
			if !sleep(ctx, c.retryDelay) {
				c.logger.Info().Msg("worker shutting down")
				return ctx.Err()
			}
			continue
		}

		ev := c.logger.Info().
			Bool("found", res.Found).
			Int64("attempts", res.Attempts).
			Dur("duration", res.Duration)
		if res.Found {
			ev = ev.Str("candidate", res.Candidate)
		}
		ev.Msg("job completed")
	}

	c.logger.Info().Int("max-jobs", c.maxJobs).Msg("job limit reached")
	return nil
}

// RunCycle performs exactly one connect/request/response/report/close sequence.
// It returns protocol.ErrNoWork, without sending a report, when the server has no
// work left.
func (c *Coordinator) RunCycle(ctx context.Context) (*types.Result, error) {
	c.jobs.Add(1)
	log := c.logger.With().Str("job-id", uuid.NewString()).Logger()

	c.setState(StateConnecting, log)
	conn, err := c.connect(ctx, log)
	if err != nil {
		c.setState(StateIdle, log)
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		c.setState(StateDisconnected, log)
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
		c.setState(StateIdle, log)
	}()

	c.setState(StateRequestingWork, log)
	if err := conn.Send(ctx, c.codec.EncodeRequest(c.parallelism)); err != nil {
		return nil, fmt.Errorf("request work: %w", err)
	}

	c.setState(StateAwaitingPartition, log)
	response, err := conn.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("await partition: %w", err)
	}
	partition, err := c.codec.DecodePartition(response)
	if err != nil {
		return nil, err
	}
	log.Info().Int("ranges", len(partition)).Msg("claimed job")

	c.setState(StateSearching, log)
	res, err := c.searcher.Search(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	c.setState(StateReporting, log)
	if err := conn.Send(ctx, c.codec.EncodeOutcome(res.Outcome)); err != nil {
		return nil, fmt.Errorf("report outcome: %w", err)
	}
	return res, nil
}

func (c *Coordinator) connect(ctx context.Context, log zerolog.Logger) (transport.Conn, error) {
	return retry.DoWithData(
		func() (transport.Conn, error) {
			return c.dialer.Dial(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(c.connectAttempts),
		retry.Delay(connectDelay),
		retry.MaxDelay(connectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("connect failed")
		}),
	)
}

// sleep waits for d, returning false if ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
