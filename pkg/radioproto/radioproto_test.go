package radioproto

import (
	"testing"

	"github.com/Archie3d/meshtastic-link/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed32Field(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func userBytes() []byte {
	var b []byte
	b = appendBytesField(b, 1, []byte("!11223344"))
	b = appendBytesField(b, 2, []byte("Base Station"))
	b = appendBytesField(b, 3, []byte("BASE"))
	b = appendBytesField(b, 4, []byte{0xAA, 0xBB, 0x11, 0x22, 0x33, 0x44})
	b = appendVarintField(b, 5, 9)
	return b
}

func positionBytes() []byte {
	var b []byte
	lat := int32(-338500000)
	b = appendFixed32Field(b, 1, uint32(lat))
	b = appendFixed32Field(b, 2, 1512000000)
	alt := int32(-12)
	b = appendVarintField(b, 3, uint64(int64(alt)))
	b = appendFixed32Field(b, 4, 1700000000)
	return b
}

func TestDecodeNodeInfo(t *testing.T) {
	var info []byte
	info = appendVarintField(info, 1, 0x11223344)
	info = appendBytesField(info, 2, userBytes())
	info = appendBytesField(info, 3, positionBytes())
	info = appendBytesField(info, 4, nil) // unknown to us, skipped
	info = appendBytesField(info, 6, appendVarintField(nil, 1, 87))

	var frame []byte
	frame = appendVarintField(frame, 1, 5)
	frame = appendBytesField(frame, 4, info)

	msg, err := Decode(frame)
	require.NoError(t, err)
	require.NotNil(t, msg.NodeInfo)
	assert.Equal(t, uint32(5), msg.Id)

	node := msg.NodeInfo
	assert.Equal(t, types.NodeId(0x11223344), node.Num)
	assert.Equal(t, "!11223344", node.User.Id)
	assert.Equal(t, "Base Station", node.User.LongName)
	assert.Equal(t, "BASE", node.User.ShortName)
	assert.Equal(t, "aa:bb:11:22:33:44", node.User.MacAddr.String())
	assert.Equal(t, uint32(9), node.User.HwModel)

	require.NotNil(t, node.Position.LatitudeI)
	assert.Equal(t, int32(-338500000), *node.Position.LatitudeI)
	assert.Equal(t, int32(1512000000), *node.Position.LongitudeI)
	assert.Equal(t, int32(-12), *node.Position.Altitude)
	assert.Equal(t, uint32(1700000000), *node.Position.Time)
	require.NotNil(t, node.Position.BatteryLevel)
	assert.Equal(t, uint32(87), *node.Position.BatteryLevel)
}

func TestDecodePositionPacket(t *testing.T) {
	var data []byte
	data = appendVarintField(data, 1, uint64(PortNum_POSITION_APP))
	data = appendBytesField(data, 2, positionBytes())

	var packet []byte
	packet = appendFixed32Field(packet, 1, 0xdeadbeef)
	packet = appendFixed32Field(packet, 2, 0xffffffff)
	packet = appendVarintField(packet, 3, 0)
	packet = appendBytesField(packet, 4, data)
	packet = appendFixed32Field(packet, 6, 1234)

	msg, err := Decode(appendBytesField(nil, 2, packet))
	require.NoError(t, err)
	require.NotNil(t, msg.Packet)

	assert.Equal(t, types.NodeId(0xdeadbeef), msg.Packet.From)
	assert.Equal(t, types.BroadcastNodeId, msg.Packet.To)
	assert.Equal(t, uint32(1234), msg.Packet.Id)
	assert.Equal(t, PortNum_POSITION_APP, msg.Packet.PortNum)
	assert.False(t, msg.Packet.Encrypted)

	position, err := DecodePosition(msg.Packet.Payload)
	require.NoError(t, err)
	assert.Equal(t, int32(-338500000), *position.LatitudeI)
	assert.Nil(t, position.BatteryLevel)
}

func TestDecodeMyInfoAndConfigComplete(t *testing.T) {
	msg, err := Decode(appendBytesField(nil, 3, appendVarintField(nil, 1, 0xabcd)))
	require.NoError(t, err)
	require.NotNil(t, msg.MyNodeNum)
	assert.Equal(t, types.NodeId(0xabcd), *msg.MyNodeNum)

	msg, err = Decode(appendVarintField(nil, 7, 99))
	require.NoError(t, err)
	assert.Equal(t, uint32(99), msg.ConfigCompleteId)
	assert.Nil(t, msg.NodeInfo)
	assert.Nil(t, msg.Packet)
}

func TestDecodeTruncated(t *testing.T) {
	frame := appendBytesField(nil, 4, appendVarintField(nil, 1, 1))
	_, err := Decode(frame[:len(frame)-1])

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "FromRadio", decodeErr.Message)
}

func TestEncodeToRadio(t *testing.T) {
	assert.Equal(t, []byte{0x18, 0x2a}, EncodeWantConfig(42))
	assert.Equal(t, []byte{0x3a, 0x00}, EncodeHeartbeat())
	assert.Equal(t, []byte{0x20, 0x01}, EncodeDisconnect())
}

func TestDecodeEncryptedPacket(t *testing.T) {
	var packet []byte
	packet = appendFixed32Field(packet, 1, 0x42)
	packet = appendVarintField(packet, 3, 8)
	packet = appendBytesField(packet, 5, []byte{1, 2, 3})
	packet = appendFixed32Field(packet, 6, 77)

	msg, err := Decode(appendBytesField(nil, fromRadioPacket, packet))
	require.NoError(t, err)
	require.NotNil(t, msg.Packet)

	assert.True(t, msg.Packet.Encrypted)
	assert.Equal(t, uint32(8), msg.Packet.Channel)
	assert.Equal(t, uint32(77), msg.Packet.Id)
	assert.Equal(t, []byte{1, 2, 3}, msg.Packet.Payload)
	assert.Equal(t, PortNum(0), msg.Packet.PortNum)
}

func TestDecodeData(t *testing.T) {
	data := appendVarintField(nil, 1, uint64(PortNum_TEXT_MESSAGE_APP))
	data = appendBytesField(data, 2, []byte("Hello"))
	data = appendVarintField(data, 9, 0)

	port, payload, err := DecodeData(data)
	require.NoError(t, err)
	assert.Equal(t, PortNum_TEXT_MESSAGE_APP, port)
	assert.Equal(t, []byte("Hello"), payload)
}

func TestDecodeTelemetryBatteryLevel(t *testing.T) {
	telemetry := appendFixed32Field(nil, 1, 1700000000)
	telemetry = appendBytesField(telemetry, 2, appendVarintField(nil, 1, 101))

	battery, err := DecodeTelemetryBatteryLevel(telemetry)
	require.NoError(t, err)
	require.NotNil(t, battery)
	assert.Equal(t, uint32(101), *battery)

	battery, err = DecodeTelemetryBatteryLevel(appendFixed32Field(nil, 1, 1700000000))
	require.NoError(t, err)
	assert.Nil(t, battery)
}
