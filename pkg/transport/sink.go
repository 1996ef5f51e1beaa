package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Sink forwards outbound chunks to the link, one write at a time.
type Sink struct {
	writer LinkWriter

	mutex sync.Mutex
	err   error

	chunks atomic.Uint64
	bytes  atomic.Uint64
}

func newSink(writer LinkWriter) *Sink {
	return &Sink{writer: writer}
}

// Send a chunk to the device. The call returns once the link write has
// completed. The first write failure is terminal and is returned by every
// subsequent call without touching the link.
func (s *Sink) Send(ctx context.Context, chunk []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.err != nil {
		return s.err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.writer.Write(ctx, chunk); err != nil {
		s.err = &StreamError{Op: "write", Err: err}
		log.With("err", err, "size", len(chunk)).Warn("Write to device failed")
		return s.err
	}

	s.chunks.Add(1)
	s.bytes.Add(uint64(len(chunk)))

	return nil
}

// io.Writer interface
func (s *Sink) Write(p []byte) (int, error) {
	if err := s.Send(context.Background(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Terminal error of the sink, nil while it is usable.
func (s *Sink) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

func (s *Sink) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.err == nil {
		s.err = ErrTransportClosed
	}
}
