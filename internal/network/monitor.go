// Package network tracks reachability and notifies listeners on transitions.
package network

import (
	"sync"

	"github.com/medadhere/backend/internal/logging"
)

// Monitor holds the current online state.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	listeners map[int]func(online bool)
	nextID    int
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:    online,
		listeners: make(map[int]func(bool)),
	}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a reachability change. Listeners are only notified
// when the state actually changes.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	cbs := make([]func(bool), 0, len(m.listeners))
	for _, cb := range m.listeners {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	logging.Info("Network status changed", map[string]interface{}{"online": online})
	for _, cb := range cbs {
		cb(online)
	}
}

// Subscribe registers cb for transitions. The returned func unsubscribes.
func (m *Monitor) Subscribe(cb func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = cb
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}
