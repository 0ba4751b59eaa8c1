package cloudreg

import (
	"fmt"
	"strings"
)

// Device parameter keys that mark a device as switch-capable
const (
	paramSwitch   = "switch"
	paramSwitches = "switches"
)

// Params is the capability map of a device record: capability name to
// capability state, as reported by the cloud service.  Read-mostly; this
// module never mutates it.
type Params map[string]interface{}

// HasSwitch reports whether the parameter set carries a binary switch
// capability, either single-channel ("switch") or multi-channel ("switches").
func (p Params) HasSwitch() bool {
	if p == nil {
		return false
	}
	_, single := p[paramSwitch]
	_, multi := p[paramSwitches]
	return single || multi
}

// Switch returns the single-channel switch state if the device has one.
func (p Params) Switch() (string, bool) {
	v, ok := p[paramSwitch]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Device is one device record from the cloud registry.
type Device struct {
	ID     string `json:"deviceid"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
	Params Params `json:"params"`
}

// Validate rejects records the registry should never have produced, so that
// malformed upstream data fails at the boundary rather than surfacing later
// as a failed lookup.
func (d Device) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("device record %q has no deviceid", d.Name)
	}
	return nil
}

// IsSwitch reports whether the device exposes a switch capability.
func (d Device) IsSwitch() bool {
	return d.Params.HasSwitch()
}

// Home is a grouping under which the cloud account organises devices.
type Home struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SwitchState is the value of the single-channel switch capability.
type SwitchState string

const (
	SwitchStateOn  SwitchState = "on"
	SwitchStateOff SwitchState = "off"
)

// Command is the payload of a send operation.  Only the single-channel form
// is supported: multi-channel devices are addressed through the top-level
// switch key, not per sub-switch.
type Command struct {
	Switch SwitchState `json:"switch"`
}

// Validate rejects payloads that would be meaningless on the wire.
func (c Command) Validate() error {
	switch c.Switch {
	case SwitchStateOn, SwitchStateOff:
		return nil
	}
	return fmt.Errorf("invalid switch state %q", c.Switch)
}

// SwitchOn returns the command payload that turns a switch on.
func SwitchOn() Command {
	return Command{Switch: SwitchStateOn}
}

// SwitchOff returns the command payload that turns a switch off.
func SwitchOff() Command {
	return Command{Switch: SwitchStateOff}
}
