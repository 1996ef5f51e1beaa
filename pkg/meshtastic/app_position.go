package meshtastic

import (
	"github.com/Archie3d/meshtastic-link/pkg/nodedb"
	"github.com/Archie3d/meshtastic-link/pkg/radioproto"
	"github.com/charmbracelet/log"
)

// Stores positions reported on the mesh in the node directory.
type PositionApplication struct {
	nodes *nodedb.NodeDB
}

func NewPositionApplication(nodes *nodedb.NodeDB) *PositionApplication {
	return &PositionApplication{nodes: nodes}
}

func (app *PositionApplication) GetPortNum() radioproto.PortNum {
	return radioproto.PortNum_POSITION_APP
}

func (app *PositionApplication) HandleIncomingPacket(packet *radioproto.MeshPacket) error {
	position, err := radioproto.DecodePosition(packet.Payload)
	if err != nil {
		return err
	}

	app.nodes.AddPositionData(packet.From, position)

	lat, _ := position.Latitude()
	lon, _ := position.Longitude()
	log.With("from", packet.From, "lat", lat, "lon", lon).Debug("Position")

	return nil
}
