package meshtastic

import (
	"encoding/json"

	"github.com/Archie3d/meshtastic-link/pkg/radioproto"
	"github.com/Archie3d/meshtastic-link/pkg/types"
	"github.com/charmbracelet/log"
)

type TextApplicationIncomingMessage struct {
	ChannelId uint32       `json:"channel"`
	From      types.NodeId `json:"from"`
	To        types.NodeId `json:"to"`
	Text      string       `json:"text"`
}

// Logs text messages and forwards them to NATS when connected.
type TextApplication struct {
	publisher Publisher
	subject   string
}

func NewTextApplication(publisher Publisher, subjectPrefix string) *TextApplication {
	return &TextApplication{
		publisher: publisher,
		subject:   subjectPrefix + ".in.text",
	}
}

func (app *TextApplication) GetPortNum() radioproto.PortNum {
	return radioproto.PortNum_TEXT_MESSAGE_APP
}

func (app *TextApplication) HandleIncomingPacket(packet *radioproto.MeshPacket) error {
	log.With("from", packet.From, "to", packet.To).Infof("Text message: %s", packet.Payload)

	if app.publisher == nil {
		return nil
	}

	message := TextApplicationIncomingMessage{
		ChannelId: packet.Channel,
		From:      packet.From,
		To:        packet.To,
		Text:      string(packet.Payload),
	}

	data, err := json.Marshal(&message)
	if err != nil {
		return err
	}

	return app.publisher.Publish(app.subject, data)
}
