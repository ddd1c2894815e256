package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/andresmejia3/rollcall/internal/types"
)

// Memory keeps rows in process memory only. It backs dry runs and tests.
type Memory struct {
	Schema Schema

	mu       sync.Mutex
	events   []types.AttendanceEvent
	presence []types.PresenceEvent
}

func NewMemory(schema Schema) *Memory {
	return &Memory{Schema: schema}
}

func (m *Memory) RecordIfAbsent(ctx context.Context, ev types.AttendanceEvent) (bool, error) {
	if m.Schema.Mode != IdentitySchema.Mode {
		return false, ErrWrongMode
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.events {
		if e.Name == ev.Name && e.Date == ev.Date {
			return false, nil
		}
	}
	m.events = append(m.events, ev)
	return true, nil
}

func (m *Memory) RecordPresence(ctx context.Context, ev types.PresenceEvent) error {
	if m.Schema.Mode != PresenceSchema.Mode {
		return ErrWrongMode
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence = append(m.presence, ev)
	return nil
}

func (m *Memory) Events(ctx context.Context, date string) ([]types.AttendanceEvent, error) {
	if m.Schema.Mode != IdentitySchema.Mode {
		return nil, ErrWrongMode
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.AttendanceEvent
	for _, e := range m.events {
		if date == "" || e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Presence(ctx context.Context, date string) ([]types.PresenceEvent, error) {
	if m.Schema.Mode != PresenceSchema.Mode {
		return nil, ErrWrongMode
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.PresenceEvent
	for _, e := range m.presence {
		if date == "" || strings.HasPrefix(e.Timestamp, date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events, m.presence = nil, nil
	return nil
}

func (m *Memory) Close(ctx context.Context) {}
