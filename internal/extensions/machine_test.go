package extensions_test

import (
	"strings"
	"testing"
	"time"

	"mfestate/internal/extensions"
	"mfestate/pkg/domain"
)

func toggleConfig(trace *[]string) extensions.MachineConfig {
	cfg := extensions.MachineConfig{
		Key:     "light",
		Initial: "off",
		States: map[string]*extensions.MachineState{
			"off": {On: map[string]string{"TOGGLE": "on"}, Exit: []string{"leaveOff"}},
			"on":  {On: map[string]string{"TOGGLE": "off"}, Entry: []string{"enterOn"}},
		},
	}
	cfg.Bind("leaveOff", func() { *trace = append(*trace, "exit:off") })
	cfg.Bind("enterOn", func() { *trace = append(*trace, "entry:on") })
	return cfg
}

func TestStateMachineTransitions(t *testing.T) {
	s := newStore(t)
	var trace []string
	m, err := extensions.NewStateMachine(s, toggleConfig(&trace))
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if m.State() != "off" || s.Get("light") != "off" {
		t.Fatalf("expected initial state off")
	}
	if len(trace) != 0 {
		t.Fatalf("initial state ran hooks: %v", trace)
	}

	s.Subscribe("light", func(value any, ev domain.ChangeEvent) {
		if ev.Source == domain.SourceMachine {
			trace = append(trace, "write:"+value.(string))
		}
	})
	if !m.Send("TOGGLE") {
		t.Fatalf("expected TOGGLE to transition")
	}
	if got := strings.Join(trace, ","); got != "exit:off,write:on,entry:on" {
		t.Fatalf("unexpected hook order %q", got)
	}
	if m.State() != "on" || !m.Can("TOGGLE") || m.Can("EXPLODE") {
		t.Fatalf("unexpected machine state %q", m.State())
	}
}

func TestStateMachineUnknownEventIsNoop(t *testing.T) {
	s := newStore(t)
	var trace []string
	m, err := extensions.NewStateMachine(s, toggleConfig(&trace))
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	r := record(s)
	if m.Send("EXPLODE") {
		t.Fatalf("unknown event reported a transition")
	}
	if len(r.all()) != 0 || len(trace) != 0 || m.State() != "off" {
		t.Fatalf("unknown event had effects: events %d hooks %v", len(r.all()), trace)
	}
}

func loaderConfig() extensions.MachineConfig {
	return extensions.MachineConfig{
		Key:     "loader",
		Initial: "idle",
		States: map[string]*extensions.MachineState{
			"idle":    {On: map[string]string{"LOAD": "loading"}},
			"loading": {On: map[string]string{"DONE": "ready"}, Entry: []string{"fetch"}, Exit: []string{"stopSpinner"}},
			"ready":   {On: map[string]string{"LOAD": "loading"}},
		},
	}
}

func TestStateMachineEntryActionCanSend(t *testing.T) {
	s := newStore(t)
	var m *extensions.StateMachine
	var trace []string
	cfg := loaderConfig()
	cfg.Bind("fetch", func() {
		trace = append(trace, "fetch")
		if !m.Send("DONE") {
			t.Errorf("follow-up event was not accepted")
		}
		trace = append(trace, "fetch-returned")
	})
	cfg.Bind("stopSpinner", func() { trace = append(trace, "stop") })
	var err error
	if m, err = extensions.NewStateMachine(s, cfg); err != nil {
		t.Fatalf("new machine: %v", err)
	}

	done := make(chan bool, 1)
	go func() { done <- m.Send("LOAD") }()
	select {
	case moved := <-done:
		if !moved {
			t.Fatalf("LOAD did not transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Send blocked when an entry action sent a follow-up event")
	}
	if m.State() != "ready" {
		t.Fatalf("expected ready after queued DONE, got %q", m.State())
	}
	if got := strings.Join(trace, ","); got != "fetch,fetch-returned,stop" {
		t.Fatalf("queued event did not run after the entry action: %q", got)
	}
}

func TestStateMachineListenerCanSend(t *testing.T) {
	s := newStore(t)
	m, err := extensions.NewStateMachine(s, loaderConfig())
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	var seen []string
	m.Subscribe(func(state string) {
		seen = append(seen, state)
		if state == "loading" {
			m.Send("DONE")
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Send("LOAD")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Send blocked when a listener sent a follow-up event")
	}
	if got := strings.Join(seen, ","); got != "idle,loading,ready" {
		t.Fatalf("unexpected states %q", got)
	}
	if m.Send("DONE") {
		t.Fatalf("DONE is not valid in ready")
	}
}

func TestStateMachineDropsQueuedEventWithoutTransition(t *testing.T) {
	s := newStore(t)
	var m *extensions.StateMachine
	cfg := loaderConfig()
	cfg.Bind("fetch", func() { m.Send("BOGUS") })
	var err error
	if m, err = extensions.NewStateMachine(s, cfg); err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if !m.Send("LOAD") || m.State() != "loading" {
		t.Fatalf("expected loading, got %q", m.State())
	}
	if !m.Send("DONE") || m.State() != "ready" {
		t.Fatalf("machine stuck after dropping a queued event: %q", m.State())
	}
}

func TestStateMachineKeepsExistingState(t *testing.T) {
	s := newStore(t)
	s.Set("light", "on")
	var trace []string
	m, err := extensions.NewStateMachine(s, toggleConfig(&trace))
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if m.State() != "on" {
		t.Fatalf("machine overwrote existing state: %q", m.State())
	}
}

func TestStateMachineSubscribeFiltersNil(t *testing.T) {
	s := newStore(t)
	var trace []string
	m, _ := extensions.NewStateMachine(s, toggleConfig(&trace))
	var seen []string
	unsubscribe := m.Subscribe(func(state string) { seen = append(seen, state) })
	defer unsubscribe()
	m.Send("TOGGLE")
	s.Delete("light")
	if got := strings.Join(seen, ","); got != "off,on" {
		t.Fatalf("unexpected states %q", got)
	}
}

func TestMachineConfigValidate(t *testing.T) {
	states := func() map[string]*extensions.MachineState {
		return map[string]*extensions.MachineState{"a": {On: map[string]string{"GO": "b"}}, "b": {}}
	}
	cases := []struct {
		name string
		cfg  extensions.MachineConfig
		want string
	}{
		{"missing key", extensions.MachineConfig{Initial: "a", States: states()}, "key"},
		{"missing initial", extensions.MachineConfig{Key: "k", States: states()}, "initial state is required"},
		{"unknown initial", extensions.MachineConfig{Key: "k", Initial: "z", States: states()}, "not found"},
		{"bad target", extensions.MachineConfig{Key: "k", Initial: "a", States: map[string]*extensions.MachineState{"a": {On: map[string]string{"GO": "z"}}}}, "invalid transition target"},
		{"unbound action", extensions.MachineConfig{Key: "k", Initial: "a", States: map[string]*extensions.MachineState{"a": {Entry: []string{"ghost"}}}}, "unbound action"},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
	ok := extensions.MachineConfig{Key: "k", Initial: "a", States: states()}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestParseMachineYAML(t *testing.T) {
	doc := []byte(`
key: checkout:step
initial: cart
states:
  cart:
    on: {NEXT: payment}
  payment:
    on: {BACK: cart, PAY: done}
    entry: [startPayment]
  done:
`)
	cfg, err := extensions.ParseMachineYAML(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	started := 0
	cfg.Bind("startPayment", func() { started++ })

	s := newStore(t)
	m, err := extensions.NewStateMachine(s, cfg)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	m.Send("NEXT")
	m.Send("PAY")
	if m.State() != "done" || started != 1 {
		t.Fatalf("expected done with one payment start, got %q/%d", m.State(), started)
	}
	if got := m.Events(); len(got) != 0 {
		t.Fatalf("terminal state accepts %v", got)
	}
}

func TestParseMachineYAMLRejectsUnknownFields(t *testing.T) {
	if _, err := extensions.ParseMachineYAML([]byte("key: k\ninitial: a\nstatez: {}\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
}
