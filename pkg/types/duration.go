package types

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration in configuration files, either a Go duration string ("90s",
// "5m") or a bare number of seconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func ParseDuration(s string) (Duration, error) {
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}

	tmp, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}

	if tmp < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}

	return Duration(tmp), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
