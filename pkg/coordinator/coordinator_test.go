package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/rangecrack/internal/config"
	"github.com/screa/rangecrack/internal/crypto"
	"github.com/screa/rangecrack/pkg/protocol"
	"github.com/screa/rangecrack/pkg/transport"
)

// fakeServer scripts one response per connection and records what the worker sent.
type fakeServer struct {
	mu        sync.Mutex
	responses []string // consumed one per Dial; "" once exhausted
	dialErrs  []error  // consumed one per Dial before responses
	sent      [][]string
	closed    int
}

func (s *fakeServer) Dial(ctx context.Context) (transport.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dialErrs) > 0 {
		err := s.dialErrs[0]
		s.dialErrs = s.dialErrs[1:]
		return nil, err
	}
	resp := ""
	if len(s.responses) > 0 {
		resp = s.responses[0]
		s.responses = s.responses[1:]
	}
	s.sent = append(s.sent, nil)
	return &fakeConn{server: s, idx: len(s.sent) - 1, response: resp}, nil
}

func (s *fakeServer) messages() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

type fakeConn struct {
	server   *fakeServer
	idx      int
	response string
	received bool
}

func (c *fakeConn) Send(ctx context.Context, msg string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.sent[c.idx] = append(c.server.sent[c.idx], msg)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (string, error) {
	if c.received {
		return "", transport.ErrClosed
	}
	c.received = true
	return c.response, nil
}

func (c *fakeConn) Close() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.closed++
	return nil
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Target = crypto.SumHex(crypto.MD5, "0000000042")
	cfg.Width = 10
	cfg.Workers = 2
	cfg.ConnectAttempts = 1
	cfg.RetryDelay = 0
	return cfg
}

func newCoordinator(t *testing.T, cfg *config.Config, d transport.Dialer) *Coordinator {
	t.Helper()
	c, err := New(cfg, d, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestRunCycleFound(t *testing.T) {
	srv := &fakeServer{responses: []string{"0,100"}}
	c := newCoordinator(t, testConfig(), srv)

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "0000000042", res.Candidate)

	assert.Equal(t, [][]string{{"REQUEST|2", "SUCCESS|0000000042"}}, srv.messages())
	assert.Equal(t, 1, srv.closed)
	assert.Equal(t, StateIdle, c.State())
}

func TestRunCycleNotFound(t *testing.T) {
	srv := &fakeServer{responses: []string{"43,100"}}
	c := newCoordinator(t, testConfig(), srv)

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, int64(58), res.Attempts, "report only after the whole range")
	assert.Equal(t, [][]string{{"REQUEST|2", "FAILURE|"}}, srv.messages())
}

func TestRunCycleSplitRanges(t *testing.T) {
	srv := &fakeServer{responses: []string{"0,50|51,100"}}
	c := newCoordinator(t, testConfig(), srv)

	_, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"REQUEST|2", "SUCCESS|0000000042"}}, srv.messages())
}

func TestRunCycleNoWorkSendsNoReport(t *testing.T) {
	srv := &fakeServer{responses: []string{""}}
	c := newCoordinator(t, testConfig(), srv)

	_, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, protocol.ErrNoWork)
	assert.Equal(t, [][]string{{"REQUEST|2"}}, srv.messages())
	assert.Equal(t, 1, srv.closed)
}

func TestRunCycleProtocolError(t *testing.T) {
	srv := &fakeServer{responses: []string{"0,50,100"}}
	c := newCoordinator(t, testConfig(), srv)

	_, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, protocol.ErrMalformedRange)
	assert.Equal(t, [][]string{{"REQUEST|2"}}, srv.messages())
	assert.Equal(t, 1, srv.closed, "connection closed on protocol error")
	assert.Equal(t, StateIdle, c.State())
}

func TestRunCycleConnectRetries(t *testing.T) {
	refused := errors.New("connection refused")
	srv := &fakeServer{dialErrs: []error{refused, refused}, responses: []string{"0,100"}}
	cfg := testConfig()
	cfg.ConnectAttempts = 3
	c := newCoordinator(t, cfg, srv)

	res, err := c.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
}

func TestRunCycleConnectFailure(t *testing.T) {
	refused := errors.New("connection refused")
	srv := &fakeServer{dialErrs: []error{refused}}
	c := newCoordinator(t, testConfig(), srv)

	_, err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, refused)
	assert.Empty(t, srv.messages())
	assert.Equal(t, StateIdle, c.State())
}

func TestRunLoopsUntilNoWork(t *testing.T) {
	refused := errors.New("connection refused")
	srv := &fakeServer{
		dialErrs:  []error{refused},
		responses: []string{"oops", "0,100", "43,100"},
	}
	c := newCoordinator(t, testConfig(), srv)

	err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"REQUEST|2"},
		{"REQUEST|2", "SUCCESS|0000000042"},
		{"REQUEST|2", "FAILURE|"},
		{"REQUEST|2"},
	}, srv.messages())
	assert.Equal(t, 4, srv.closed)
	assert.Equal(t, int64(5), c.Jobs())
}

func TestRunMaxJobs(t *testing.T) {
	srv := &fakeServer{responses: []string{"43,100", "43,100", "43,100"}}
	cfg := testConfig()
	cfg.MaxJobs = 2
	c := newCoordinator(t, cfg, srv)

	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, srv.messages(), 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	refused := errors.New("connection refused")
	d := transport.DialerFunc(func(ctx context.Context) (transport.Conn, error) {
		return nil, refused
	})
	cfg := testConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	c := newCoordinator(t, cfg, d)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, c.Jobs(), int64(1), "failed cycles are retried")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	srv := &fakeServer{responses: []string{"0,100"}}
	c := newCoordinator(t, testConfig(), srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
	assert.Empty(t, srv.messages())
}

func TestNewDefaultsParallelismToCores(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 0
	c := newCoordinator(t, cfg, &fakeServer{})
	assert.Positive(t, c.parallelism)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Target = "not-hex"
	_, err := New(cfg, &fakeServer{}, zerolog.Nop())
	assert.ErrorIs(t, err, crypto.ErrInvalidTarget)

	cfg = testConfig()
	cfg.FieldSep = ""
	_, err = New(cfg, &fakeServer{}, zerolog.Nop())
	assert.ErrorIs(t, err, protocol.ErrInvalidCodec)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting-partition", StateAwaitingPartition.String())
	assert.Equal(t, "unknown", State(42).String())
}
