// Package stream implements the close-able result sequence that federated
// queries deliver their merged records through.
package stream

import (
	"context"
	"sync"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
)

// Reader is the consumer side of a result stream.
type Reader interface {
	// Take blocks until a record is available or the stream is closed and drained.
	Take() (result.Result, bool)
	// TakeContext is Take bounded by ctx.
	TakeContext(ctx context.Context) (result.Result, bool, error)
	// HasMore reports whether Take can still return a record.
	HasMore() bool
	// Hits returns the total hit count. Final once Done is closed.
	Hits() int64
	// Done is closed when the writer closes the stream.
	Done() <-chan struct{}
}

// Stream is a FIFO of results with a running hit count and a closed flag.
// Any number of writers may Push; one reader Takes.
type Stream struct {
	mu     sync.Mutex
	items  []result.Result
	hits   int64
	closed bool
	signal chan struct{} // buffered(1): data may be available
	done   chan struct{} // closed on close
}

var _ Reader = (*Stream)(nil)

// New creates an open, empty stream.
func New() *Stream {
	return &Stream{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends a record. Pushing into a closed stream is a programming error and panics.
func (s *Stream) Push(r result.Result) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic(domain.ErrStreamClosed)
	}
	s.items = append(s.items, r)
	s.mu.Unlock()
	s.notify()
}

// PushAll appends a batch of records without interleaving other writers.
func (s *Stream) PushAll(rs []result.Result) {
	if len(rs) == 0 {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		panic(domain.ErrStreamClosed)
	}
	s.items = append(s.items, rs...)
	s.mu.Unlock()
	s.notify()
}

// AddHits increments the running hit count.
func (s *Stream) AddHits(n int64) {
	s.mu.Lock()
	s.hits += n
	s.mu.Unlock()
}

// CloseAndSetHits stamps the final hit total and closes the stream.
// Only the first call has any effect.
func (s *Stream) CloseAndSetHits(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.hits = n
	s.closed = true
	close(s.done)
}

// Take implements Reader.
func (s *Stream) Take() (result.Result, bool) {
	r, ok, _ := s.TakeContext(context.Background())
	return r, ok
}

// TakeContext implements Reader. It returns ctx.Err() when ctx ends first.
func (s *Stream) TakeContext(ctx context.Context) (result.Result, bool, error) {
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			r := s.items[0]
			s.items[0] = result.Result{}
			s.items = s.items[1:]
			more := len(s.items) > 0
			s.mu.Unlock()
			if more {
				s.notify()
			}
			return r, true, nil
		}
		if s.closed {
			s.mu.Unlock()
			return result.Result{}, false, nil
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-s.done:
		case <-ctx.Done():
			return result.Result{}, false, ctx.Err()
		}
	}
}

// HasMore implements Reader.
func (s *Stream) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed || len(s.items) > 0
}

// Hits implements Reader.
func (s *Stream) Hits() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

// Done implements Reader.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Len returns the number of unread records.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Closed reports whether the writer has closed the stream.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Drain reads every remaining record until the stream closes or ctx ends.
func Drain(ctx context.Context, r Reader) ([]result.Result, error) {
	var out []result.Result
	for {
		res, ok, err := r.TakeContext(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, res)
	}
}
