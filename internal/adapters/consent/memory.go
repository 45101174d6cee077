// Package consent keeps recording consent collected by the host application.
package consent

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/samber/do/v2"
)

type Memory struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]map[domain.ParticipantID]bool
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[domain.SessionID]map[domain.ParticipantID]bool)}
}

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(do.Injector) (*Memory, error) {
		return NewMemory(), nil
	})
	do.Provide(injector, func(i do.Injector) (core.ConsentProvider, error) {
		return do.MustInvoke[*Memory](i), nil
	})
}

// Set records whether participant agreed to be recorded in session.
func (m *Memory) Set(session domain.SessionID, participant domain.ParticipantID, granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[session]
	if !ok {
		c = make(map[domain.ParticipantID]bool)
		m.sessions[session] = c
	}
	c[participant] = granted
}

func (m *Memory) Forget(session domain.SessionID) {
	m.mu.Lock()
	delete(m.sessions, session)
	m.mu.Unlock()
}

func (m *Memory) Consents(_ context.Context, session domain.SessionID) (map[domain.ParticipantID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := maps.Clone(m.sessions[session])
	if c == nil {
		c = make(map[domain.ParticipantID]bool)
	}
	return c, nil
}
