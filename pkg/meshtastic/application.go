package meshtastic

import (
	"github.com/Archie3d/meshtastic-link/pkg/radioproto"
)

// Subset of *nats.Conn used to publish messages.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Application handles decoded mesh packets for one port number.
type Application interface {
	GetPortNum() radioproto.PortNum
	HandleIncomingPacket(packet *radioproto.MeshPacket) error
}
