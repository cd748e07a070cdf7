package reporting

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownID is returned for a launch or item id the backend never issued.
var ErrUnknownID = errors.New("reporting: unknown id")

type MemoryLaunch struct {
	ID     string
	Start  StartLaunchRQ
	Finish *FinishExecutionRQ
}

type MemoryItem struct {
	ID       string
	LaunchID string
	ParentID string
	Start    StartItemRQ
	Finish   *FinishExecutionRQ
}

type MemoryLog struct {
	LaunchID string
	ItemID   string
	Log      LogRQ
}

// Memory is a Backend that keeps everything in process. Items and logs are
// kept in arrival order.
type Memory struct {
	mu       sync.Mutex
	launches []*MemoryLaunch
	items    []*MemoryItem
	byID     map[string]*MemoryItem
	logs     []MemoryLog
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*MemoryItem)}
}

func (m *Memory) StartLaunch(_ context.Context, rq StartLaunchRQ) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &MemoryLaunch{ID: uuid.NewString(), Start: rq}
	m.launches = append(m.launches, l)
	return l.ID, nil
}

func (m *Memory) FinishLaunch(_ context.Context, launchID string, rq FinishExecutionRQ) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.launches {
		if l.ID == launchID {
			l.Finish = &rq
			return nil
		}
	}
	return ErrUnknownID
}

func (m *Memory) StartItem(_ context.Context, launchID, parentID string, rq StartItemRQ) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if parentID != "" {
		if _, ok := m.byID[parentID]; !ok {
			return "", ErrUnknownID
		}
	}
	it := &MemoryItem{ID: uuid.NewString(), LaunchID: launchID, ParentID: parentID, Start: rq}
	m.items = append(m.items, it)
	m.byID[it.ID] = it
	return it.ID, nil
}

func (m *Memory) FinishItem(_ context.Context, itemID string, rq FinishExecutionRQ) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.byID[itemID]
	if !ok {
		return ErrUnknownID
	}
	it.Finish = &rq
	return nil
}

func (m *Memory) Log(_ context.Context, launchID, itemID string, rq LogRQ) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, MemoryLog{LaunchID: launchID, ItemID: itemID, Log: rq})
	return nil
}

func (m *Memory) Launches() []MemoryLaunch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryLaunch, len(m.launches))
	for i, l := range m.launches {
		out[i] = *l
	}
	return out
}

func (m *Memory) Items() []MemoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryItem, len(m.items))
	for i, it := range m.items {
		out[i] = *it
	}
	return out
}

// ItemsOfType returns the items started with type t.
func (m *Memory) ItemsOfType(t ItemType) []MemoryItem {
	var out []MemoryItem
	for _, it := range m.Items() {
		if it.Start.Type == t {
			out = append(out, it)
		}
	}
	return out
}

// Item returns the first item whose name is name.
func (m *Memory) Item(name string) (MemoryItem, bool) {
	for _, it := range m.Items() {
		if it.Start.Name == name {
			return it, true
		}
	}
	return MemoryItem{}, false
}

func (m *Memory) Logs() []MemoryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryLog, len(m.logs))
	copy(out, m.logs)
	return out
}

// LogsFor returns the logs attached to itemID.
func (m *Memory) LogsFor(itemID string) []MemoryLog {
	var out []MemoryLog
	for _, l := range m.Logs() {
		if l.ItemID == itemID {
			out = append(out, l)
		}
	}
	return out
}
