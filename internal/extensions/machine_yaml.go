package extensions

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseMachineYAML decodes a machine definition. Actions named in entry and
// exit lists must be bound with MachineConfig.Bind before NewStateMachine.
//
//	key: checkout:step
//	initial: cart
//	states:
//	  cart:
//	    on: {NEXT: payment}
//	  payment:
//	    on: {BACK: cart, PAY: done}
//	    entry: [startPayment]
//	  done: {}
func ParseMachineYAML(data []byte) (MachineConfig, error) {
	var cfg MachineConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return MachineConfig{}, fmt.Errorf("decode machine yaml: %w", err)
	}
	for name, state := range cfg.States {
		if state == nil {
			cfg.States[name] = &MachineState{}
		}
	}
	return cfg, nil
}
