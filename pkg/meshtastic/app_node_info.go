package meshtastic

import (
	"github.com/Archie3d/meshtastic-link/pkg/nodedb"
	"github.com/Archie3d/meshtastic-link/pkg/radioproto"
	"github.com/charmbracelet/log"
)

// Stores users announced on the mesh in the node directory.
type NodeInfoApplication struct {
	nodes *nodedb.NodeDB
}

func NewNodeInfoApplication(nodes *nodedb.NodeDB) *NodeInfoApplication {
	return &NodeInfoApplication{nodes: nodes}
}

func (app *NodeInfoApplication) GetPortNum() radioproto.PortNum {
	return radioproto.PortNum_NODEINFO_APP
}

func (app *NodeInfoApplication) HandleIncomingPacket(packet *radioproto.MeshPacket) error {
	user, err := radioproto.DecodeUser(packet.Payload)
	if err != nil {
		return err
	}

	app.nodes.AddUserData(packet.From, user)

	log.With(
		"from", packet.From,
		"id", user.Id,
		"long_name", user.LongName,
	).Debug("Node info")

	return nil
}
