package seriallink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Archie3d/meshtastic-link/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	r *io.PipeReader

	mutex   sync.Mutex
	written bytes.Buffer
}

func newFakePort() (*fakePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &fakePort{r: r}, w
}

func (p *fakePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	return p.r.Close()
}

func (p *fakePort) bytes() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return bytes.Clone(p.written.Bytes())
}

func TestParserFrames(t *testing.T) {
	var frames [][]byte
	var lines []string

	p := &frameParser{
		onFrame:   func(b []byte) { frames = append(frames, b) },
		onConsole: func(s string) { lines = append(lines, s) },
	}

	stream := []byte("INFO | boot\r\n")
	stream = append(stream, START1, START2, 0x00, 0x03, 'a', 'b', 'c')
	stream = append(stream, START1, START2, 0x00, 0x00) // empty frame
	stream = append(stream, START1, START2, 0x00, 0x02, 'd', 'e')
	stream = append(stream, []byte("done\n")...)

	// Feed in awkward pieces
	p.feed(stream[:5])
	p.feed(stream[5:16])
	p.feed(stream[16:])

	assert.Equal(t, [][]byte{[]byte("abc"), []byte("de")}, frames)
	assert.Equal(t, []string{"INFO | boot", "done"}, lines)
}

func TestParserResyncsOnBadHeader(t *testing.T) {
	var frames [][]byte
	p := &frameParser{onFrame: func(b []byte) { frames = append(frames, b) }}

	p.feed([]byte{START1, 'x', START1, START1, START2, 0x00, 0x01, 'y'})
	p.feed([]byte{START1, START2, 0xFF, 0xFF}) // longer than allowed
	p.feed([]byte{START1, START2, 0x00, 0x01, 'z'})

	assert.Equal(t, [][]byte{[]byte("y"), []byte("z")}, frames)
}

func TestEncodeFrame(t *testing.T) {
	frame, err := encodeFrame([]byte{0x18, 0x2a})
	require.NoError(t, err)
	assert.Equal(t, []byte{START1, START2, 0x00, 0x02, 0x18, 0x2a}, frame)

	_, err = encodeFrame(make([]byte, MAX_PAYLOAD_SIZE+1))
	assert.Error(t, err)
}

func TestLinkReadEmptyWhenIdle(t *testing.T) {
	port, w := newFakePort()
	link := NewLink(port)
	defer w.Close()
	defer link.Close()

	data, err := link.Read(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, data)
}

func TestLinkThroughTransport(t *testing.T) {
	port, w := newFakePort()
	link := NewLink(port)
	tr := transport.New(link)
	defer tr.Close()
	defer link.Close()

	go w.Write([]byte{
		'l', 'o', 'g', '\n',
		START1, START2, 0x00, 0x02, 0x01, 0x02,
		START1, START2, 0x00, 0x01, 0x03,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := tr.FromDevice().Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, out.Data)

	out, err = tr.FromDevice().Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03}, out.Data)

	require.NoError(t, tr.ToDevice().Send(ctx, []byte{0x3a, 0x00}))
	assert.Equal(t, []byte{START1, START2, 0x00, 0x02, 0x3a, 0x00}, port.bytes())
}

func TestLinkReadFailureReachesTransport(t *testing.T) {
	port, w := newFakePort()
	link := NewLink(port)
	tr := transport.New(link)
	defer tr.Close()
	defer link.Close()

	boom := errors.New("usb unplugged")
	go func() {
		w.Write([]byte{START1, START2, 0x00, 0x01, 0x07})
		w.CloseWithError(boom)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := tr.FromDevice().Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x07}, out.Data)

	_, err = tr.FromDevice().Recv(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestLinkClose(t *testing.T) {
	port, w := newFakePort()
	defer w.Close()
	link := NewLink(port)

	assert.NoError(t, link.Close())

	_, err := link.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
