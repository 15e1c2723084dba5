package runtime

import (
	"context"
	"sync"

	"github.com/drblury/faultline/internal/runtime/report"
)

// Sink delivers reports. Send is only ever called from the client's worker
// goroutine.
type Sink interface {
	Send(ctx context.Context, r *report.Report) error
	Close() error
}

// MemorySink keeps every report it receives. It is meant for tests.
type MemorySink struct {
	mu      sync.Mutex
	reports []*report.Report
	err     error
	closed  bool
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Send(_ context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailWith makes subsequent sends return err. A nil err restores delivery.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Reports returns the delivered reports in order.
func (s *MemorySink) Reports() []*report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*report.Report, len(s.reports))
	copy(out, s.reports)
	return out
}

// Closed reports whether Close was called.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
