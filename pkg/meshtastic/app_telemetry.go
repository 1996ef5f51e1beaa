package meshtastic

import (
	"encoding/json"

	"github.com/Archie3d/meshtastic-link/pkg/nodedb"
	"github.com/Archie3d/meshtastic-link/pkg/radioproto"
	"github.com/Archie3d/meshtastic-link/pkg/types"
	"github.com/charmbracelet/log"
)

type DeviceMetricsIncomingMessage struct {
	ChannelId    uint32       `json:"channel"`
	From         types.NodeId `json:"from"`
	BatteryLevel uint32       `json:"battery_level"`
}

// Keeps the battery level of each node's position up to date from device
// metrics telemetry, and republishes the metrics when a publisher is set.
type TelemetryApplication struct {
	nodes     *nodedb.NodeDB
	publisher Publisher
	subject   string
}

func NewTelemetryApplication(nodes *nodedb.NodeDB, publisher Publisher, subjectPrefix string) *TelemetryApplication {
	return &TelemetryApplication{
		nodes:     nodes,
		publisher: publisher,
		subject:   subjectPrefix + ".in.telemetry.device_metrics",
	}
}

func (app *TelemetryApplication) GetPortNum() radioproto.PortNum {
	return radioproto.PortNum_TELEMETRY_APP
}

func (app *TelemetryApplication) HandleIncomingPacket(packet *radioproto.MeshPacket) error {
	battery, err := radioproto.DecodeTelemetryBatteryLevel(packet.Payload)
	if err != nil {
		return err
	}

	if battery == nil {
		// Environment or power metrics
		return nil
	}

	var position nodedb.Position
	if info, ok := app.nodes.GetNodeByNum(packet.From); ok {
		position = info.Position
	}
	position.BatteryLevel = battery

	app.nodes.Upsert(packet.From, nodedb.Patch{Position: &position})

	log.With("from", packet.From, "battery", *battery).Debug("Device metrics")

	if app.publisher == nil {
		return nil
	}

	msg, err := json.Marshal(DeviceMetricsIncomingMessage{
		ChannelId:    packet.Channel,
		From:         packet.From,
		BatteryLevel: *battery,
	})
	if err != nil {
		return err
	}

	return app.publisher.Publish(app.subject, msg)
}
