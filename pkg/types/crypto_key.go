package types

import (
	"encoding/base64"

	"gopkg.in/yaml.v3"
)

// Channel key, base64 encoded in configuration files.
type CryptoKey []byte

func (k CryptoKey) MarshalYAML() (any, error) {
	return k.String(), nil
}

func (k *CryptoKey) UnmarshalYAML(node *yaml.Node) error {
	ba, err := base64.StdEncoding.DecodeString(node.Value)
	if err != nil {
		return err
	}
	*k = ba
	return nil
}

func (k CryptoKey) String() string {
	return base64.StdEncoding.EncodeToString(k)
}
