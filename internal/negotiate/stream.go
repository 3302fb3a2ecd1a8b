package negotiate

import (
	"io"
	"sync"
)

// stream is the guarded output sink shared between the subprocess reader
// goroutine and the negotiation poll loop. The poll loop scans the whole
// accumulated buffer; once the data boundary is located the informational
// prefix is discarded and the remainder is served through Read.
type stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	err    error
}

func newStream() *stream {
	s := &stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write appends subprocess output. Always succeeds so the reader goroutine
// drains the pipe even after the session has been handed to the caller.
func (s *stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	s.cond.Broadcast()
	return len(p), nil
}

// finish marks the producer side done; err may be nil for clean EOF.
func (s *stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	s.cond.Broadcast()
}

// snapshot copies the accumulated buffer and reports producer completion.
func (s *stream) snapshot() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out, s.closed
}

// discard drops the first n buffered bytes.
func (s *stream) discard(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.buf) {
		n = len(s.buf)
	}
	s.buf = append([]byte(nil), s.buf[n:]...)
}

// drop throws away everything buffered so far.
func (s *stream) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}

// Read blocks until buffered data, producer completion, or close.
func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.buf) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := copy(p, s.buf)
	s.buf = append([]byte(nil), s.buf[n:]...)
	return n, nil
}
