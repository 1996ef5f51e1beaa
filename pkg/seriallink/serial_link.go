// Package seriallink implements a transport link over the Meshtastic serial
// stream protocol. Incoming frames are queued by a background reader which
// signals the transport; reads pop one frame at a time.
package seriallink

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Archie3d/meshtastic-link/pkg/types"
	"github.com/charmbracelet/log"
	"go.bug.st/serial"
)

const (
	DEFAULT_BAUD_RATE = 115200

	readTimeout = 1 * time.Second
)

var ErrClosed = errors.New("serial link closed")

type Link struct {
	port io.ReadWriteCloser

	writeMutex sync.Mutex

	mutex  sync.Mutex
	frames [][]byte
	err    error

	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open a serial port and start reading frames from it.
func Open(portName string, baudRate int) (*Link, error) {
	if baudRate == 0 {
		baudRate = DEFAULT_BAUD_RATE
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}

	log.With("port", portName, "baud", baudRate).Info("Opened serial link")

	return NewLink(port), nil
}

// Wrap an already open port. A port read returning no bytes and no error
// is treated as a read timeout.
func NewLink(port io.ReadWriteCloser) *Link {
	l := &Link{
		port:   port,
		notify: make(chan struct{}, 1),
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())

	l.wg.Go(l.readLoop)

	return l
}

func (l *Link) Write(ctx context.Context, data []byte) error {
	frame, err := encodeFrame(data)
	if err != nil {
		return err
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := l.port.Write(frame)
	if err != nil {
		return err
	}

	if n < len(frame) {
		return &types.TimeoutError{}
	}

	return nil
}

// Pop the next received frame, or an empty slice when none is queued.
// Once the reader has failed and the queue is empty, the failure is returned.
func (l *Link) Read(ctx context.Context) ([]byte, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if len(l.frames) > 0 {
		frame := l.frames[0]
		l.frames[0] = nil
		l.frames = l.frames[1:]
		return frame, nil
	}

	if l.err != nil {
		return nil, l.err
	}

	return []byte{}, nil
}

func (l *Link) Notifications() <-chan struct{} {
	return l.notify
}

func (l *Link) Close() error {
	l.cancel()
	err := l.port.Close()
	l.wg.Wait()
	return err
}

func (l *Link) readLoop() {
	parser := &frameParser{
		onFrame: l.enqueue,
		onConsole: func(line string) {
			log.With("line", line).Debug("Device console")
		},
	}

	buf := make([]byte, 256)

	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			parser.feed(buf[:n])
		}

		if err != nil {
			if l.ctx.Err() != nil {
				err = ErrClosed
			}
			l.fail(err)
			return
		}

		if n == 0 && l.ctx.Err() != nil {
			l.fail(ErrClosed)
			return
		}
	}
}

func (l *Link) enqueue(frame []byte) {
	l.mutex.Lock()
	l.frames = append(l.frames, frame)
	l.mutex.Unlock()

	l.signal()
}

func (l *Link) fail(err error) {
	l.mutex.Lock()
	l.err = err
	l.mutex.Unlock()

	if !errors.Is(err, ErrClosed) {
		log.With("err", err).Warn("Serial link read failed")
	}

	// Wake the reader side so it observes the failure
	l.signal()
}

func (l *Link) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
		// Already signalled
	}
}
