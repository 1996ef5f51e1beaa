package types

import (
	"encoding/json"
	"fmt"
	"net"

	"gopkg.in/yaml.v3"
)

type MacAddress [6]byte

// Build a MAC address from a byte slice, missing bytes are left zero.
func MacAddressFromBytes(b []byte) MacAddress {
	var m MacAddress
	copy(m[:], b)
	return m
}

func (m MacAddress) String() string {
	return net.HardwareAddr(m[:]).String()
}

func (m MacAddress) MarshalYAML() (any, error) {
	return m.String(), nil
}

func (m *MacAddress) UnmarshalYAML(node *yaml.Node) error {
	hw, err := net.ParseMAC(node.Value)
	if err != nil {
		return err
	}

	if len(hw) != len(m) {
		return fmt.Errorf("invalid MAC address length %d", len(hw))
	}

	copy(m[:], hw)
	return nil
}

func (m MacAddress) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", m.String())), nil
}

func (m *MacAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	hw, err := net.ParseMAC(s)
	if err != nil {
		return err
	}

	*m = MacAddressFromBytes(hw)
	return nil
}
