package meshtastic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Archie3d/meshtastic-link/pkg/event_loop"
	"github.com/Archie3d/meshtastic-link/pkg/nodedb"
	"github.com/Archie3d/meshtastic-link/pkg/radioproto"
	"github.com/Archie3d/meshtastic-link/pkg/transport"
	"github.com/Archie3d/meshtastic-link/pkg/types"
	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

var ErrNotStarted = errors.New("node is not started")

const disconnectTimeout = 2 * time.Second

// Node is a client session with one radio. It asks the radio for its node
// database, keeps the directory up to date from everything the radio sends,
// and keeps the session alive with periodic heartbeats.
type Node struct {
	config    *NodeConfiguration
	transport *transport.Transport
	nodes     *nodedb.NodeDB

	natsConn  *nats.Conn
	publisher *NodeListPublisher

	applications []Application
	channels     []*Channel

	eventLoop event_loop.EventLoop
	packetIds *types.PacketIdGenerator

	myNodeNum     atomic.Uint32
	haveMyNodeNum atomic.Bool

	configMutex    sync.Mutex
	configId       uint32
	configComplete chan struct{}

	errMutex sync.Mutex
	err      error
	done     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNode(config *NodeConfiguration, tr *transport.Transport) *Node {
	nodes := nodedb.New()

	node := &Node{
		config:    config,
		transport: tr,
		nodes:     nodes,

		eventLoop: event_loop.NewEventLoop(),
		packetIds: types.NewPacketIdGenerator(8),

		configComplete: make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, ch := range config.Channels {
		node.channels = append(node.channels, NewChannel(ch.Name, ch.EncryptionKey))
	}

	node.AddApplication(NewNodeInfoApplication(nodes))
	node.AddApplication(NewPositionApplication(nodes))

	return node
}

func (n *Node) AddApplication(app Application) {
	n.applications = append(n.applications, app)
}

func (n *Node) Nodes() *nodedb.NodeDB {
	return n.nodes
}

func (n *Node) MyNodeNum() (types.NodeId, bool) {
	return types.NodeId(n.myNodeNum.Load()), n.haveMyNodeNum.Load()
}

func (n *Node) Start() error {
	if n.config.NatsUrl != "" {
		nc, err := nats.Connect(n.config.NatsUrl)
		if err != nil {
			return err
		}

		n.natsConn = nc
		n.AddApplication(NewTextApplication(nc, n.config.NatsSubjectPrefix))
		n.AddApplication(NewTelemetryApplication(n.nodes, nc, n.config.NatsSubjectPrefix))
		n.publisher = NewNodeListPublisher(nc, n.nodes, n.config.NatsSubjectPrefix)
		n.publisher.Start()
	} else {
		n.AddApplication(NewTextApplication(nil, n.config.NatsSubjectPrefix))
		n.AddApplication(NewTelemetryApplication(n.nodes, nil, n.config.NatsSubjectPrefix))
	}

	n.ctx, n.cancel = context.WithCancel(context.Background())

	n.wg.Go(n.receiveLoop)
	n.wg.Go(n.eventLoop.Run)

	if period := time.Duration(n.config.HeartbeatPeriod); period > 0 {
		n.eventLoop.Every(func(el event_loop.EventLoop) {
			if err := n.SendToRadio(n.ctx, radioproto.EncodeHeartbeat()); err != nil {
				log.With("err", err).Warn("Failed to send heartbeat")
			}
		}, period)
	}

	return n.requestConfig()
}

func (n *Node) Stop() error {
	if n.cancel == nil {
		return nil
	}

	n.eventLoop.Quit()

	if n.Err() == nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		if err := n.SendToRadio(ctx, radioproto.EncodeDisconnect()); err != nil {
			log.With("err", err).Debug("Failed to send disconnect")
		}
		cancel()
	}

	n.cancel()
	n.wg.Wait()

	if n.publisher != nil {
		n.publisher.Stop()
	}

	if n.natsConn != nil {
		n.natsConn.Close()
	}

	return nil
}

// Closed once the session has stopped receiving from the radio.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// The error that ended the session, nil while it is running or after Stop.
func (n *Node) Err() error {
	n.errMutex.Lock()
	defer n.errMutex.Unlock()
	return n.err
}

// Wait until the radio has sent its whole configuration and node database.
func (n *Node) WaitConfig(ctx context.Context) error {
	n.configMutex.Lock()
	complete := n.configComplete
	n.configMutex.Unlock()

	select {
	case <-complete:
		return nil
	case <-n.done:
		if err := n.Err(); err != nil {
			return err
		}
		return ErrNotStarted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Node) SendToRadio(ctx context.Context, data []byte) error {
	return n.transport.ToDevice().Send(ctx, data)
}

// Start a new configuration exchange. The directory is cleared since the
// radio sends its full node database again.
func (n *Node) requestConfig() error {
	if n.ctx == nil {
		return ErrNotStarted
	}

	id := n.packetIds.GetNext()

	n.configMutex.Lock()
	n.configId = id
	select {
	case <-n.configComplete:
		n.configComplete = make(chan struct{})
	default:
	}
	n.configMutex.Unlock()

	n.nodes.Reset()

	if err := n.SendToRadio(n.ctx, radioproto.EncodeWantConfig(id)); err != nil {
		return fmt.Errorf("request config: %w", err)
	}

	log.With("config_id", id).Info("Requested radio configuration")

	return nil
}

func (n *Node) receiveLoop() {
	defer close(n.done)

	for {
		output, err := n.transport.FromDevice().Recv(n.ctx)
		if err != nil {
			if n.ctx.Err() == nil {
				n.errMutex.Lock()
				n.err = err
				n.errMutex.Unlock()

				log.With("err", err).Error("Lost connection to radio")
			}
			return
		}

		n.handleFromRadio(output.Data)
	}
}

func (n *Node) handleFromRadio(data []byte) {
	msg, err := radioproto.Decode(data)
	if err != nil {
		log.With("err", err, "size", len(data)).Warn("Dropping undecodable FromRadio")
		return
	}

	switch {
	case msg.MyNodeNum != nil:
		n.myNodeNum.Store(uint32(*msg.MyNodeNum))
		n.haveMyNodeNum.Store(true)
		log.With("num", *msg.MyNodeNum).Info("Connected radio")
	case msg.NodeInfo != nil:
		n.nodes.AddNode(*msg.NodeInfo)
	case msg.Packet != nil:
		n.handlePacket(msg.Packet)
	case msg.ConfigCompleteId != 0:
		n.handleConfigComplete(msg.ConfigCompleteId)
	case msg.Rebooted:
		log.Info("Radio rebooted")
		if err := n.requestConfig(); err != nil {
			log.With("err", err).Warn("Failed to request configuration after reboot")
		}
	}
}

func (n *Node) handleConfigComplete(id uint32) {
	n.configMutex.Lock()
	defer n.configMutex.Unlock()

	if id != n.configId {
		log.With("config_id", id, "expected", n.configId).Debug("Ignoring stale config complete")
		return
	}

	select {
	case <-n.configComplete:
	default:
		close(n.configComplete)
		log.With("nodes", n.nodes.Len()).Info("Radio configuration received")
	}
}

func (n *Node) handlePacket(packet *radioproto.MeshPacket) {
	if packet.Encrypted {
		decrypted, ok := n.decrypt(packet)
		if !ok {
			log.With("from", packet.From, "channel", packet.Channel).Debug("Dropping packet for unknown channel")
			return
		}
		packet = decrypted
	}

	for _, app := range n.applications {
		if app.GetPortNum() == packet.PortNum {
			if err := app.HandleIncomingPacket(packet); err != nil {
				log.With("err", err, "port", packet.PortNum, "from", packet.From).Warn("Failed to handle packet")
			}
		}
	}
}

func (n *Node) decrypt(packet *radioproto.MeshPacket) (*radioproto.MeshPacket, bool) {
	for _, ch := range n.channels {
		if ch.Hash() != packet.Channel {
			continue
		}

		decrypted, err := ch.DecryptPacket(packet)
		if err != nil {
			log.With("err", err, "channel", ch.Name()).Debug("Failed to decrypt packet")
			continue
		}

		return decrypted, true
	}

	return nil, false
}
