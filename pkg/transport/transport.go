package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type PumpState int32

const (
	StateIdle PumpState = iota
	StateDraining
	StateFailed
)

func (s PumpState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Stats struct {
	ChunksIn  uint64
	BytesIn   uint64
	ChunksOut uint64
	BytesOut  uint64
}

// Transport turns a write / pull-read / notify link into a duplex stream:
// a sink for bytes going to the device and a source of chunks coming from it.
// One transport serves one link for the lifetime of that link.
type Transport struct {
	toDevice   *Sink
	fromDevice *Source

	reader        LinkReader
	notifications <-chan struct{}

	state    atomic.Int32
	chunksIn atomic.Uint64
	bytesIn  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Create a transport over a ready link. No I/O is performed here; the read
// pump is armed and waits for the first notification.
func New(link Link) *Transport {
	return NewFromPrimitives(link, link, link)
}

func NewFromPrimitives(writer LinkWriter, reader LinkReader, notifier LinkNotifier) *Transport {
	t := &Transport{
		toDevice:      newSink(writer),
		fromDevice:    newSource(),
		reader:        reader,
		notifications: notifier.Notifications(),
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.state.Store(int32(StateIdle))

	t.wg.Go(t.pump)

	return t
}

func (t *Transport) ToDevice() *Sink {
	return t.toDevice
}

func (t *Transport) FromDevice() *Source {
	return t.fromDevice
}

func (t *Transport) State() PumpState {
	return PumpState(t.state.Load())
}

func (t *Transport) Stats() Stats {
	return Stats{
		ChunksIn:  t.chunksIn.Load(),
		BytesIn:   t.bytesIn.Load(),
		ChunksOut: t.toDevice.chunks.Load(),
		BytesOut:  t.toDevice.bytes.Load(),
	}
}

// Stop the read pump and close both directions. The link itself is left
// untouched; tearing it down is up to its owner.
func (t *Transport) Close() error {
	t.cancel()
	t.wg.Wait()

	t.toDevice.close()
	t.fromDevice.fail(ErrTransportClosed)

	return nil
}

func (t *Transport) pump() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case _, ok := <-t.notifications:
			if !ok {
				t.failPump(ErrLinkClosed)
				return
			}

			if err := t.drain(); err != nil {
				if t.ctx.Err() != nil {
					// Closed while a read was in flight
					return
				}
				t.failPump(&StreamError{Op: "read", Err: err})
				return
			}
		}
	}
}

// Read until the link reports it has nothing more, pushing each chunk to the source.
func (t *Transport) drain() error {
	t.state.Store(int32(StateDraining))

	count := 0
	for {
		data, err := t.reader.Read(t.ctx)
		if err != nil {
			return err
		}

		if len(data) == 0 {
			break
		}

		t.chunksIn.Add(1)
		t.bytesIn.Add(uint64(len(data)))
		t.fromDevice.push(DeviceOutput{Type: OutputPacket, Data: data})
		count++
	}

	t.state.Store(int32(StateIdle))
	log.With("chunks", count).Debug("Drain cycle complete")

	return nil
}

func (t *Transport) failPump(err error) {
	t.state.Store(int32(StateFailed))
	t.fromDevice.fail(err)
	log.With("err", err).Warn("Read from device stopped")
}
