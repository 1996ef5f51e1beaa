package transport

import (
	"context"
	"sync"
)

type OutputType string

const (
	OutputPacket OutputType = "packet"
)

// DeviceOutput is one inbound item, a raw chunk as returned by the link.
type DeviceOutput struct {
	Type OutputType
	Data []byte
}

// Source is the unbounded inbound queue filled by the read pump.
// It is never restarted: once failed, it hands out the items queued so far
// and then the terminal error.
type Source struct {
	mutex sync.Mutex
	queue []DeviceOutput
	err   error

	ready chan struct{}
	done  chan struct{}
}

func newSource() *Source {
	return &Source{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (s *Source) push(output DeviceOutput) {
	s.mutex.Lock()
	if s.err != nil {
		s.mutex.Unlock()
		return
	}
	s.queue = append(s.queue, output)
	s.mutex.Unlock()

	s.signal()
}

func (s *Source) fail(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.err != nil {
		return
	}

	s.err = err
	close(s.done)
}

func (s *Source) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
		// Already signalled
	}
}

// Receive the next item, blocking until one is available, the source
// fails or ctx is done.
func (s *Source) Recv(ctx context.Context) (DeviceOutput, error) {
	for {
		s.mutex.Lock()
		if len(s.queue) > 0 {
			output := s.queue[0]
			s.queue[0] = DeviceOutput{}
			s.queue = s.queue[1:]
			more := len(s.queue) > 0
			s.mutex.Unlock()

			if more {
				// Let another receiver pick up the rest
				s.signal()
			}
			return output, nil
		}
		err := s.err
		s.mutex.Unlock()

		if err != nil {
			return DeviceOutput{}, err
		}

		select {
		case <-ctx.Done():
			return DeviceOutput{}, ctx.Err()
		case <-s.ready:
		case <-s.done:
		}
	}
}

// Number of items queued and not yet received.
func (s *Source) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.queue)
}

// Terminal error of the source, nil while the pump is running.
func (s *Source) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}
