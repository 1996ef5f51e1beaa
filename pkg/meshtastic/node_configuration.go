package meshtastic

import (
	"fmt"
	"os"
	"time"

	"github.com/Archie3d/meshtastic-link/pkg/types"
	"gopkg.in/yaml.v3"
)

// See https://dev.to/ilyakaznacheev/a-clean-way-to-pass-configs-in-a-go-application-1g64

const (
	LinkTypeSerial = "serial"
	LinkTypeBle    = "ble"

	defaultHeartbeatPeriod   = 5 * time.Minute
	defaultConnectTimeout    = 30 * time.Second
	defaultNatsSubjectPrefix = "meshtastic"
)

type NodeConfiguration struct {
	LogLevel string `yaml:"log_level"`

	Link LinkConfiguration `yaml:"link"`

	HeartbeatPeriod types.Duration `yaml:"heartbeat_period"`

	// Keys for packets the radio forwards undecrypted
	Channels []ChannelConfiguration `yaml:"channels"`

	NatsUrl           string `yaml:"nats_url"`
	NatsSubjectPrefix string `yaml:"nats_subject_prefix"`
}

type LinkConfiguration struct {
	Type string `yaml:"type"`

	// Serial link
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`

	// BLE link, device address or advertised name
	Address        string         `yaml:"address"`
	ConnectTimeout types.Duration `yaml:"connect_timeout"`
}

type ChannelConfiguration struct {
	Name          string          `yaml:"name"`
	EncryptionKey types.CryptoKey `yaml:"encryption_key"`
}

func LoadNodeConfiguration(configFile string) (*NodeConfiguration, error) {
	f, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	config := &NodeConfiguration{}
	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configFile, err)
	}

	return config, nil
}

func (c *NodeConfiguration) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.HeartbeatPeriod == 0 {
		c.HeartbeatPeriod = types.Duration(defaultHeartbeatPeriod)
	}

	if c.Link.ConnectTimeout == 0 {
		c.Link.ConnectTimeout = types.Duration(defaultConnectTimeout)
	}

	if c.NatsSubjectPrefix == "" {
		c.NatsSubjectPrefix = defaultNatsSubjectPrefix
	}
}

func (c *NodeConfiguration) Validate() error {
	switch c.Link.Type {
	case LinkTypeSerial:
		if c.Link.Port == "" {
			return fmt.Errorf("serial link requires a port")
		}
	case LinkTypeBle:
		if c.Link.Address == "" {
			return fmt.Errorf("ble link requires an address")
		}
	default:
		return fmt.Errorf("unknown link type %q", c.Link.Type)
	}

	for i, ch := range c.Channels {
		switch len(ch.EncryptionKey) {
		case 1:
			if idx := ch.EncryptionKey[0]; idx == 0 || idx > maxKeyIndex {
				return fmt.Errorf("channel %d (%s): invalid key index %d", i, ch.Name, idx)
			}
		case 16, 32:
		default:
			return fmt.Errorf("channel %d (%s): invalid encryption key length %d", i, ch.Name, len(ch.EncryptionKey))
		}
	}

	return nil
}
