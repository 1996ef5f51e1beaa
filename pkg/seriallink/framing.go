package seriallink

import (
	"encoding/binary"
	"fmt"
)

const (
	START1 = 0x94
	START2 = 0xC3

	HEADER_SIZE      = 4
	MAX_PAYLOAD_SIZE = 512
)

type parserState int

const (
	waitStart1 parserState = iota
	waitStart2
	waitLengthMsb
	waitLengthLsb
	readPayload
)

func encodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MAX_PAYLOAD_SIZE {
		return nil, fmt.Errorf("frame payload too large: %d bytes", len(payload))
	}

	frame := make([]byte, HEADER_SIZE, HEADER_SIZE+len(payload))
	frame[0] = START1
	frame[1] = START2
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))

	return append(frame, payload...), nil
}

// frameParser splits the byte stream coming from the radio into frames.
// Bytes outside of frames are the device's debug console output.
type frameParser struct {
	state   parserState
	length  int
	payload []byte

	console []byte

	onFrame   func(payload []byte)
	onConsole func(line string)
}

func (p *frameParser) feed(data []byte) {
	for _, b := range data {
		switch p.state {
		case waitStart1:
			if b == START1 {
				p.state = waitStart2
			} else {
				p.consoleByte(b)
			}
		case waitStart2:
			switch b {
			case START2:
				p.state = waitLengthMsb
			case START1:
				p.consoleByte(START1)
			default:
				p.consoleByte(START1)
				p.consoleByte(b)
				p.state = waitStart1
			}
		case waitLengthMsb:
			p.length = int(b) << 8
			p.state = waitLengthLsb
		case waitLengthLsb:
			p.length |= int(b)
			if p.length > MAX_PAYLOAD_SIZE {
				// Corrupted header, look for the next frame
				p.state = waitStart1
				continue
			}
			p.payload = make([]byte, 0, p.length)
			p.state = readPayload
			if p.length == 0 {
				p.emit()
			}
		case readPayload:
			p.payload = append(p.payload, b)
			if len(p.payload) == p.length {
				p.emit()
			}
		}
	}
}

func (p *frameParser) emit() {
	payload := p.payload
	p.payload = nil
	p.state = waitStart1

	// Empty frames carry nothing and would read as "no more data"
	if len(payload) > 0 && p.onFrame != nil {
		p.onFrame(payload)
	}
}

func (p *frameParser) consoleByte(b byte) {
	if b == '\n' {
		if len(p.console) > 0 && p.onConsole != nil {
			p.onConsole(string(p.console))
		}
		p.console = p.console[:0]
		return
	}

	if b != '\r' {
		p.console = append(p.console, b)
	}
}
