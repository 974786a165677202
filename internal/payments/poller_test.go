package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/payments"
)

type scriptedSettler struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	settled bool
	err     error
}

func (s *scriptedSettler) VerifyAndSettle(ctx context.Context, reference, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[s.calls]
	if s.calls < len(s.results)-1 {
		s.calls++
	}
	return r.settled, r.err
}

func (s *scriptedSettler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPollerStopsWhenSettled(t *testing.T) {
	settler := &scriptedSettler{results: []result{
		{settled: false},
		{settled: false},
		{settled: true},
	}}
	poller := payments.NewPoller(settler, time.Millisecond, logger.NewLogger())

	done := make(chan struct{})
	go func() {
		poller.Start(context.Background(), "ref-1", "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after settlement")
	}
	assert.GreaterOrEqual(t, settler.callCount(), 2)
}

func TestPollerRetriesOnError(t *testing.T) {
	settler := &scriptedSettler{results: []result{
		{err: errors.New("wallet unreachable")},
		{err: errors.New("wallet unreachable")},
		{settled: true},
	}}
	poller := payments.NewPoller(settler, time.Millisecond, logger.NewLogger())

	done := make(chan struct{})
	go func() {
		poller.Start(context.Background(), "ref-1", "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller gave up instead of retrying past errors")
	}
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	settler := &scriptedSettler{results: []result{{settled: false}}}
	poller := payments.NewPoller(settler, time.Millisecond, logger.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Start(ctx, "ref-1", "")
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop on context cancellation")
	}
}
