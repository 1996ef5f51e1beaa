package meshtastic

import (
	"encoding/json"

	"github.com/Archie3d/meshtastic-link/pkg/nodedb"
	"github.com/Archie3d/meshtastic-link/pkg/types"
	"github.com/charmbracelet/log"
)

// NodeListMessage is published for every directory change. Node is omitted
// when the node was removed; Num is omitted when the whole list changed.
type NodeListMessage struct {
	Num     *types.NodeId    `json:"num,omitempty"`
	Node    *nodedb.NodeInfo `json:"node,omitempty"`
	Removed bool             `json:"removed,omitempty"`
	Size    int              `json:"size"`
}

// Mirrors node directory changes to a NATS subject.
type NodeListPublisher struct {
	publisher   Publisher
	nodes       *nodedb.NodeDB
	subject     string
	unsubscribe func()
}

func NewNodeListPublisher(publisher Publisher, nodes *nodedb.NodeDB, subjectPrefix string) *NodeListPublisher {
	return &NodeListPublisher{
		publisher: publisher,
		nodes:     nodes,
		subject:   subjectPrefix + ".nodes",
	}
}

func (p *NodeListPublisher) Start() {
	if p.unsubscribe != nil {
		return
	}

	p.unsubscribe = p.nodes.Subscribe(p.handleEvent)

	log.With("subject", p.subject).Info("Publishing node list changes")
}

func (p *NodeListPublisher) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

func (p *NodeListPublisher) handleEvent(event nodedb.Event) {
	message := NodeListMessage{
		Num:  event.Num,
		Size: p.nodes.Len(),
	}

	if event.Num != nil {
		if node, ok := p.nodes.GetNodeByNum(*event.Num); ok {
			message.Node = &node
		} else {
			message.Removed = true
		}
	}

	data, err := json.Marshal(&message)
	if err != nil {
		log.With("err", err).Warn("Failed to marshal node list change")
		return
	}

	if err := p.publisher.Publish(p.subject, data); err != nil {
		log.With("err", err, "subject", p.subject).Warn("Failed to publish node list change")
	}
}
