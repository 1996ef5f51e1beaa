package meshtastic

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/Archie3d/meshtastic-link/pkg/radioproto"
	"github.com/Archie3d/meshtastic-link/pkg/types"
)

// AQ==
var defaultPublicKey = []byte{0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59, 0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01}

// Channel decrypts packets the radio forwards still encrypted, e.g. when
// they arrived on a channel the radio itself has no key for.
type Channel struct {
	name          string
	encryptionKey []byte
	hash          byte
}

// Highest single byte key index. Index n > 0 is the default key with n-1
// added to its last byte, index 0 means no encryption.
const maxKeyIndex = 10

func expandKey(key []byte) []byte {
	if len(key) != 1 || key[0] == 0 || key[0] > maxKeyIndex {
		return key
	}

	expanded := slices.Clone(defaultPublicKey)
	expanded[len(expanded)-1] += key[0] - 1
	return expanded
}

func NewChannel(name string, key []byte) *Channel {
	key = expandKey(key)

	var hash byte
	for _, c := range append([]byte(name), key...) {
		hash ^= c
	}

	return &Channel{
		name:          name,
		encryptionKey: key,
		hash:          hash,
	}
}

func (c *Channel) Name() string {
	return c.name
}

// Channel hash as carried in the channel field of an encrypted packet.
func (c *Channel) Hash() uint32 {
	return uint32(c.hash)
}

func (c *Channel) crypt(packetId uint32, from types.NodeId, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.encryptionKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, 16)
	binary.LittleEndian.PutUint64(nonce[0:8], uint64(packetId))
	binary.LittleEndian.PutUint32(nonce[8:12], uint32(from))

	stream := cipher.NewCTR(block, nonce)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)

	return out, nil
}

// Encrypt an encoded Data message as the sender would.
func (c *Channel) Encrypt(packetId uint32, from types.NodeId, data []byte) ([]byte, error) {
	return c.crypt(packetId, from, data)
}

// Decrypt an encrypted packet into a decoded copy of it.
func (c *Channel) DecryptPacket(packet *radioproto.MeshPacket) (*radioproto.MeshPacket, error) {
	if !packet.Encrypted {
		return packet, nil
	}

	if packet.Channel != c.Hash() {
		return nil, fmt.Errorf("channel hash mismatch")
	}

	decrypted, err := c.crypt(packet.Id, packet.From, packet.Payload)
	if err != nil {
		return nil, err
	}

	portNum, payload, err := radioproto.DecodeData(decrypted)
	if err != nil {
		return nil, err
	}

	// Decrypting with the wrong key gives noise that rarely parses with a port
	if portNum == 0 {
		return nil, fmt.Errorf("no port number in decrypted data")
	}

	decoded := *packet
	decoded.Encrypted = false
	decoded.PortNum = portNum
	decoded.Payload = payload

	return &decoded, nil
}
