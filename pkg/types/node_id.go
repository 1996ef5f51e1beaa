package types

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Numeric identifier of a mesh node.
type NodeId uint32

const BroadcastNodeId NodeId = 0xFFFFFFFF

func (n NodeId) MarshalYAML() (any, error) {
	return n.String(), nil
}

func (n *NodeId) UnmarshalYAML(node *yaml.Node) error {
	value, err := ParseNodeId(node.Value)
	if err != nil {
		return err
	}

	*n = value

	return nil
}

func (n NodeId) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%08x\"", uint32(n))), nil
}

func (n *NodeId) UnmarshalJSON(data []byte) error {
	value := string(data)
	if len(value) > 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}

	num, err := ParseNodeId(value)
	if err != nil {
		return err
	}

	*n = num
	return nil
}

func (n NodeId) String() string {
	return fmt.Sprintf("%x", uint32(n))
}

// User id the firmware derives from the node number, e.g. "!a1b2c3d4".
func (n NodeId) UserId() string {
	return fmt.Sprintf("!%08x", uint32(n))
}

// Parse a hex node number, with or without the leading '!' of a user id.
func ParseNodeId(s string) (NodeId, error) {
	s = strings.TrimPrefix(s, "!")

	value, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}

	return NodeId(value), nil
}
