package types

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Generates non-zero random ids that do not repeat within the last n values.
// Safe for concurrent use.
type PacketIdGenerator struct {
	mutex sync.Mutex
	prev  []uint32
	index int
}

func NewPacketIdGenerator(n uint) *PacketIdGenerator {
	return &PacketIdGenerator{
		prev:  make([]uint32, max(n, 1)),
		index: 0,
	}
}

func (p *PacketIdGenerator) GetNext() uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	v := rand.Uint32()
	for v == 0 || slices.Contains(p.prev, v) {
		v = rand.Uint32()
	}

	p.prev[p.index] = v
	p.index = (p.index + 1) % len(p.prev)

	return v
}
