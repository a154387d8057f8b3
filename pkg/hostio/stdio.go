// Package hostio adapts blocking OS streams (stdin/stdout) to the
// non-blocking Input/Output hooks pkg/reliable's core expects: a
// background goroutine does the blocking read or write, and the hot
// path only ever touches channels.
package hostio

import (
	"context"
	"io"

	"github.com/datawire/dlib/dlog"
)

const chunkQueueDepth = 64

// StdinSource reads bytes from an io.Reader (normally os.Stdin) on a
// background goroutine and exposes them through a non-blocking Read
// method matching the shape of reliable.Host's input hook.
type StdinSource struct {
	chunks chan []byte
	eof    bool
	pend   []byte // leftover bytes from a chunk not yet fully consumed
}

// NewStdinSource starts the background reader over r.
func NewStdinSource(ctx context.Context, r io.Reader) *StdinSource {
	s := &StdinSource{chunks: make(chan []byte, chunkQueueDepth)}
	go s.readLoop(ctx, r)
	return s
}

func (s *StdinSource) readLoop(ctx context.Context, r io.Reader) {
	defer close(s.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				dlog.Errorf(ctx, "stdin read error: %v", err)
			}
			return
		}
	}
}

// Read implements the non-blocking input hook: it never blocks on the
// underlying stream, only on draining whatever the background reader
// has already buffered.
func (s *StdinSource) Read(buf []byte) (n int, eof bool) {
	if len(s.pend) == 0 {
		if s.eof {
			return 0, true
		}
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				s.eof = true
				return 0, true
			}
			s.pend = chunk
		default:
			return 0, false
		}
	}
	n = copy(buf, s.pend)
	s.pend = s.pend[n:]
	return n, false
}

// StdoutSink writes bytes to an io.Writer (normally os.Stdout) on a
// background goroutine, queuing what the core hands it so a slow sink
// only ever backpressures through the queue, never the core's hot
// path.
type StdoutSink struct {
	queue chan []byte
	full  bool
}

// NewStdoutSink starts the background writer over w.
func NewStdoutSink(ctx context.Context, w io.Writer) *StdoutSink {
	s := &StdoutSink{queue: make(chan []byte, chunkQueueDepth)}
	go s.writeLoop(ctx, w)
	return s
}

func (s *StdoutSink) writeLoop(ctx context.Context, w io.Writer) {
	for {
		select {
		case chunk, ok := <-s.queue:
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				dlog.Errorf(ctx, "stdout write error: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Write implements the non-blocking output hook: it accepts the whole
// of buf as long as the queue has room, otherwise it accepts nothing
// this round (the caller retries on the next tick via
// already_written).
func (s *StdoutSink) Write(buf []byte) (n int) {
	if len(buf) == 0 {
		return 0
	}
	chunk := make([]byte, len(buf))
	copy(chunk, buf)
	select {
	case s.queue <- chunk:
		return len(buf)
	default:
		return 0
	}
}
