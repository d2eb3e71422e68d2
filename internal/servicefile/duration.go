package servicefile

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Seconds is a duration written either as a Go duration ("1m30s") or as a
// bare number of seconds (90).
type Seconds time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Seconds) UnmarshalYAML(n *yaml.Node) error {
	v, err := decodeDuration(n, time.Second)
	if err != nil {
		return err
	}
	*d = Seconds(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Seconds) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Millis is a duration written either as a Go duration ("2s") or as a bare
// number of milliseconds (2000).
type Millis time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Millis) UnmarshalYAML(n *yaml.Node) error {
	v, err := decodeDuration(n, time.Millisecond)
	if err != nil {
		return err
	}
	*d = Millis(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Millis) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// decodeDuration reads a scalar as a number of units or a Go duration.
func decodeDuration(n *yaml.Node, unit time.Duration) (time.Duration, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("line %d: negative duration %s", n.Line, n.Value)
		}
		return time.Duration(f * float64(unit)), nil
	}
	d, err := time.ParseDuration(n.Value)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
	}
	if d < 0 {
		return 0, fmt.Errorf("line %d: negative duration %s", n.Line, n.Value)
	}
	return d, nil
}
