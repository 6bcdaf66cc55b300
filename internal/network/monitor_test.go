// Package network tests for the reachability monitor.
package network

import "testing"

// TestMonitor_transitions verifies listeners only see real changes.
func TestMonitor_transitions(t *testing.T) {
	m := NewMonitor(false)

	var got []bool
	unsub := m.Subscribe(func(online bool) { got = append(got, online) })

	m.SetOnline(false)
	m.SetOnline(true)
	m.SetOnline(true)
	m.SetOnline(false)

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("transitions = %v, want [true false]", got)
	}
	if m.Online() {
		t.Error("Online() = true, want false")
	}

	unsub()
	m.SetOnline(true)
	if len(got) != 2 {
		t.Errorf("unsubscribed listener called: %v", got)
	}
}
