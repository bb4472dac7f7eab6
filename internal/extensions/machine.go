package extensions

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"mfestate/pkg/domain"
)

// Action is a named entry or exit hook.
type Action func()

// MachineState describes one state: its transitions by event name and the
// actions run on entry and exit.
type MachineState struct {
	On    map[string]string `yaml:"on"`
	Entry []string          `yaml:"entry,omitempty"`
	Exit  []string          `yaml:"exit,omitempty"`
}

// MachineConfig defines a flat state machine whose current state lives in
// the store under Key.
type MachineConfig struct {
	Key     string                   `yaml:"key"`
	Initial string                   `yaml:"initial"`
	States  map[string]*MachineState `yaml:"states"`
	Actions map[string]Action        `yaml:"-"`
}

// Validate checks that the key and initial state are set, that every
// transition targets a known state and that every named action is bound.
func (c *MachineConfig) Validate() error {
	if c.Key == "" {
		return errors.New("machine key is required")
	}
	if c.Initial == "" {
		return errors.New("initial state is required")
	}
	if _, ok := c.States[c.Initial]; !ok {
		return fmt.Errorf("initial state %q not found in states", c.Initial)
	}
	for _, name := range sortedNames(c.States) {
		state := c.States[name]
		if state == nil {
			return fmt.Errorf("state %q is empty", name)
		}
		for event, target := range state.On {
			if _, ok := c.States[target]; !ok {
				return fmt.Errorf("invalid transition target %q (state %q, event %q)", target, name, event)
			}
		}
		for _, action := range append(append([]string(nil), state.Entry...), state.Exit...) {
			if _, ok := c.Actions[action]; !ok {
				return fmt.Errorf("state %q references unbound action %q", name, action)
			}
		}
	}
	return nil
}

// Bind attaches fn under name for use in entry and exit lists.
func (c *MachineConfig) Bind(name string, fn Action) *MachineConfig {
	if c.Actions == nil {
		c.Actions = make(map[string]Action)
	}
	c.Actions[name] = fn
	return c
}

// StateMachine drives a MachineConfig against a store. Transitions run to
// completion: an event sent while one is in progress is queued behind it.
type StateMachine struct {
	store Store
	cfg   MachineConfig

	mu      sync.Mutex
	running bool
	queue   []string
}

// NewStateMachine validates cfg and, when the store holds no known state
// under cfg.Key, writes cfg.Initial there. No entry action runs for the
// initial state.
func NewStateMachine(store Store, cfg MachineConfig) (*StateMachine, error) {
	mustStore(store, "state machine")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &StateMachine{store: store, cfg: cfg}
	if _, ok := m.known(store.Get(cfg.Key)); !ok {
		store.Set(cfg.Key, cfg.Initial, domain.SourceMachine)
	}
	return m, nil
}

func (m *StateMachine) known(v any) (string, bool) {
	name, ok := v.(string)
	if !ok {
		return "", false
	}
	_, ok = m.cfg.States[name]
	return name, ok
}

// State returns the current state. A missing or unknown stored value reads as
// the initial state.
func (m *StateMachine) State() string {
	if name, ok := m.known(m.store.Get(m.cfg.Key)); ok {
		return name
	}
	return m.cfg.Initial
}

// Can reports whether event triggers a transition from the current state.
func (m *StateMachine) Can(event string) bool {
	_, ok := m.cfg.States[m.State()].On[event]
	return ok
}

// Send applies event. When the current state has no transition for it
// nothing happens and Send reports false. Otherwise the current state's exit
// actions run, the new state is written, then its entry actions run.
//
// An event sent while a transition is running, from an action, a store
// listener or another goroutine, is queued and applied once the running
// transition and everything queued before it has finished. Send then reports
// true; a queued event with no transition in the state it finally meets is
// dropped.
func (m *StateMachine) Send(event string) bool {
	m.mu.Lock()
	if m.running {
		m.queue = append(m.queue, event)
		m.mu.Unlock()
		return true
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			m.mu.Lock()
			m.running = false
			m.queue = nil
			m.mu.Unlock()
			panic(rec)
		}
	}()

	moved := m.transition(event)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.running = false
			m.mu.Unlock()
			return moved
		}
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.transition(next)
	}
}

func (m *StateMachine) transition(event string) bool {
	current := m.State()
	target, ok := m.cfg.States[current].On[event]
	if !ok {
		return false
	}
	m.run(m.cfg.States[current].Exit)
	m.store.Set(m.cfg.Key, target, domain.SourceMachine)
	m.run(m.cfg.States[target].Entry)
	return true
}

func (m *StateMachine) run(actions []string) {
	for _, name := range actions {
		if fn := m.cfg.Actions[name]; fn != nil {
			fn()
		}
	}
}

// Events returns the events accepted in the current state, sorted.
func (m *StateMachine) Events() []string {
	return sortedNames(m.cfg.States[m.State()].On)
}

// Subscribe calls fn with every state written under the machine key, starting
// with the current one. Deletions of the key are not reported.
func (m *StateMachine) Subscribe(fn func(state string)) domain.Unsubscribe {
	if fn == nil {
		return func() {}
	}
	return m.store.Subscribe(m.cfg.Key, func(value any, _ domain.ChangeEvent) {
		if value == nil {
			return
		}
		if name, ok := value.(string); ok {
			fn(name)
		}
	})
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
