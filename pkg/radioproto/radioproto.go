// Package radioproto decodes the parts of the Meshtastic FromRadio stream
// that carry node metadata, and encodes the few ToRadio requests a client
// session needs. Fields that are not listed here are skipped.
package radioproto

import (
	"fmt"

	"github.com/Archie3d/meshtastic-link/pkg/nodedb"
	"github.com/Archie3d/meshtastic-link/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

type PortNum uint32

const (
	PortNum_TEXT_MESSAGE_APP PortNum = 1
	PortNum_POSITION_APP     PortNum = 3
	PortNum_NODEINFO_APP     PortNum = 4
	PortNum_TELEMETRY_APP    PortNum = 67
)

// FromRadio field numbers
const (
	fromRadioId               protowire.Number = 1
	fromRadioPacket           protowire.Number = 2
	fromRadioMyInfo           protowire.Number = 3
	fromRadioNodeInfo         protowire.Number = 4
	fromRadioConfigCompleteId protowire.Number = 7
	fromRadioRebooted         protowire.Number = 8
)

// ToRadio field numbers
const (
	toRadioWantConfigId protowire.Number = 3
	toRadioDisconnect   protowire.Number = 4
	toRadioHeartbeat    protowire.Number = 7
)

type MeshPacket struct {
	From      types.NodeId
	To        types.NodeId
	Channel   uint32
	Id        uint32
	PortNum   PortNum
	Payload   []byte
	Encrypted bool
}

// Message is a decoded FromRadio. At most one of the variant fields is set.
type Message struct {
	Id               uint32
	Packet           *MeshPacket
	MyNodeNum        *types.NodeId
	NodeInfo         *nodedb.NodeInfo
	ConfigCompleteId uint32
	Rebooted         bool
}

type DecodeError struct {
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Message, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// field is one decoded wire field. Only the member matching Type is meaningful.
type field struct {
	Num   protowire.Number
	Type  protowire.Type
	Value uint64
	Bytes []byte
}

func walk(message string, b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &DecodeError{Message: message, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		f := field{Num: num, Type: typ}

		switch typ {
		case protowire.VarintType:
			f.Value, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.Value = uint64(v)
		case protowire.Fixed64Type:
			f.Value, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return &DecodeError{Message: message, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}

	return nil
}

func Decode(data []byte) (*Message, error) {
	msg := &Message{}

	err := walk("FromRadio", data, func(f field) error {
		switch f.Num {
		case fromRadioId:
			msg.Id = uint32(f.Value)
		case fromRadioPacket:
			packet, err := DecodeMeshPacket(f.Bytes)
			if err != nil {
				return err
			}
			msg.Packet = packet
		case fromRadioMyInfo:
			num, err := decodeMyInfo(f.Bytes)
			if err != nil {
				return err
			}
			msg.MyNodeNum = &num
		case fromRadioNodeInfo:
			info, err := DecodeNodeInfo(f.Bytes)
			if err != nil {
				return err
			}
			msg.NodeInfo = info
		case fromRadioConfigCompleteId:
			msg.ConfigCompleteId = uint32(f.Value)
		case fromRadioRebooted:
			msg.Rebooted = f.Value != 0
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return msg, nil
}

func decodeMyInfo(data []byte) (types.NodeId, error) {
	var num types.NodeId

	err := walk("MyNodeInfo", data, func(f field) error {
		if f.Num == 1 {
			num = types.NodeId(f.Value)
		}
		return nil
	})

	return num, err
}

func DecodeNodeInfo(data []byte) (*nodedb.NodeInfo, error) {
	info := &nodedb.NodeInfo{}

	err := walk("NodeInfo", data, func(f field) error {
		switch f.Num {
		case 1:
			info.Num = types.NodeId(f.Value)
		case 2:
			user, err := DecodeUser(f.Bytes)
			if err != nil {
				return err
			}
			info.User = user
		case 3:
			position, err := DecodePosition(f.Bytes)
			if err != nil {
				return err
			}
			// Keep a battery level already taken from device metrics
			if position.BatteryLevel == nil {
				position.BatteryLevel = info.Position.BatteryLevel
			}
			info.Position = position
		case 6:
			battery, err := decodeBatteryLevel(f.Bytes)
			if err != nil {
				return err
			}
			if battery != nil {
				info.Position.BatteryLevel = battery
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return info, nil
}

func DecodeUser(data []byte) (nodedb.User, error) {
	var user nodedb.User

	err := walk("User", data, func(f field) error {
		switch f.Num {
		case 1:
			user.Id = string(f.Bytes)
		case 2:
			user.LongName = string(f.Bytes)
		case 3:
			user.ShortName = string(f.Bytes)
		case 4:
			user.MacAddr = types.MacAddressFromBytes(f.Bytes)
		case 5:
			user.HwModel = uint32(f.Value)
		}
		return nil
	})

	return user, err
}

func DecodePosition(data []byte) (nodedb.Position, error) {
	var position nodedb.Position

	err := walk("Position", data, func(f field) error {
		switch f.Num {
		case 1:
			v := int32(uint32(f.Value))
			position.LatitudeI = &v
		case 2:
			v := int32(uint32(f.Value))
			position.LongitudeI = &v
		case 3:
			v := int32(f.Value)
			position.Altitude = &v
		case 4:
			v := uint32(f.Value)
			position.Time = &v
		}
		return nil
	})

	return position, err
}

// DeviceMetrics.battery_level
func decodeBatteryLevel(data []byte) (*uint32, error) {
	var battery *uint32

	err := walk("DeviceMetrics", data, func(f field) error {
		if f.Num == 1 {
			v := uint32(f.Value)
			battery = &v
		}
		return nil
	})

	return battery, err
}

func DecodeMeshPacket(data []byte) (*MeshPacket, error) {
	packet := &MeshPacket{}

	err := walk("MeshPacket", data, func(f field) error {
		switch f.Num {
		case 1:
			packet.From = types.NodeId(f.Value)
		case 2:
			packet.To = types.NodeId(f.Value)
		case 3:
			packet.Channel = uint32(f.Value)
		case 4:
			portNum, payload, err := DecodeData(f.Bytes)
			if err != nil {
				return err
			}
			packet.PortNum = portNum
			packet.Payload = payload
		case 5:
			packet.Encrypted = true
			packet.Payload = f.Bytes
		case 6:
			packet.Id = uint32(f.Value)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return packet, nil
}

// Decode a Data message, the decoded payload of a mesh packet.
func DecodeData(data []byte) (PortNum, []byte, error) {
	var portNum PortNum
	var payload []byte

	err := walk("Data", data, func(f field) error {
		switch f.Num {
		case 1:
			portNum = PortNum(f.Value)
		case 2:
			payload = f.Bytes
		}
		return nil
	})

	return portNum, payload, err
}

// Battery level from the device metrics of a Telemetry payload, nil when
// the telemetry carries other metrics.
func DecodeTelemetryBatteryLevel(data []byte) (*uint32, error) {
	var battery *uint32

	err := walk("Telemetry", data, func(f field) error {
		if f.Num != 2 {
			return nil
		}

		level, err := decodeBatteryLevel(f.Bytes)
		if err != nil {
			return err
		}
		battery = level
		return nil
	})

	return battery, err
}

// ToRadio asking the radio to send its configuration and node database,
// terminated by a FromRadio carrying the same config_complete_id.
func EncodeWantConfig(id uint32) []byte {
	b := protowire.AppendTag(nil, toRadioWantConfigId, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(id))
}

// ToRadio keeping the serial API session alive.
func EncodeHeartbeat() []byte {
	b := protowire.AppendTag(nil, toRadioHeartbeat, protowire.BytesType)
	return protowire.AppendBytes(b, nil)
}

func EncodeDisconnect() []byte {
	b := protowire.AppendTag(nil, toRadioDisconnect, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}
