package status

import (
	"testing"
	"time"

	"github.com/matheus3301/livechat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Syncing},
		{Booting, Offline},
		{Booting, Error},
		{Syncing, Ready},
		{Syncing, Degraded},
		{Ready, Syncing},
		{Ready, Offline},
		{Offline, Syncing},
		{Degraded, Ready},
		{Error, Booting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to, ""); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Error)
	if err := m.Transition(Ready, ""); err == nil {
		t.Error("Transition(ERROR -> READY) should fail")
	}
	if m.Current() != Error {
		t.Errorf("state = %s, want ERROR (should not have changed)", m.Current())
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Booting, "again"); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %+v", evt)
	default:
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Offline, "push channel disconnected"); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Booting || change.To != Offline || change.Reason != "push channel disconnected" {
		t.Errorf("change = %+v", change)
	}
	if m.Reason() != "push channel disconnected" {
		t.Errorf("reason = %q", m.Reason())
	}
}

func TestTrackerDerivesState(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   State
	}{
		{"booted, never connected", []string{bus.KindSyncStarted, bus.KindSyncCompleted}, Offline},
		{"connected and synced", []string{bus.KindPushConnected, bus.KindSyncStarted, bus.KindSyncCompleted}, Ready},
		{"sync running", []string{bus.KindPushConnected, bus.KindSyncStarted}, Syncing},
		{"sync failed", []string{bus.KindPushConnected, bus.KindSyncStarted, bus.KindSyncFailed}, Degraded},
		{"recovered", []string{bus.KindPushConnected, bus.KindSyncFailed, bus.KindSyncStarted, bus.KindSyncCompleted}, Ready},
		{"disconnected", []string{bus.KindPushConnected, bus.KindSyncCompleted, bus.KindPushDisconnected}, Offline},
		{"messages ignored", []string{bus.KindPushConnected, bus.KindSyncCompleted, bus.KindPushMessage}, Ready},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			tr := NewTracker(m, nil, nil)
			for _, k := range tt.events {
				tr.Handle(bus.NewEvent(k, nil))
			}
			if m.Current() != tt.want {
				t.Errorf("state = %s, want %s", m.Current(), tt.want)
			}
		})
	}
}

func TestTrackerStoreUnavailable(t *testing.T) {
	m := NewMachine(nil)
	tr := NewTracker(m, nil, nil)
	tr.StoreUnavailable("open store: disk full")
	tr.Handle(bus.NewEvent(bus.KindPushConnected, nil))
	tr.Handle(bus.NewEvent(bus.KindSyncCompleted, nil))
	if m.Current() != Degraded {
		t.Errorf("state = %s, want DEGRADED", m.Current())
	}
}

func TestTrackerFollowsBus(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	tr := NewTracker(m, b, nil)
	tr.Start(t.Context())
	defer tr.Stop()

	ch, unsub := b.Subscribe("daemon.", 10)
	defer unsub()

	b.Publish(bus.NewEvent(bus.KindPushConnected, nil))
	b.Publish(bus.NewEvent(bus.KindSyncStarted, nil))
	b.Publish(bus.NewEvent(bus.KindSyncCompleted, nil))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if change := evt.Payload.(StatusChange); change.To == Ready {
				return
			}
		case <-deadline:
			t.Fatalf("state = %s, want READY", m.Current())
		}
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:  {},
		Syncing:  {Syncing},
		Ready:    {Syncing, Ready},
		Degraded: {Syncing, Degraded},
		Offline:  {Offline},
		Error:    {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s, ""); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
