package journal

import "sync"

// Memory keeps the journal in process memory. Used by tests and by runs
// that do not need persistence.
type Memory struct {
	mu        sync.Mutex
	events    []Event
	snapshots []Snapshot
}

func NewMemory() *Memory {
	return &Memory{}
}

func (j *Memory) RecordEvent(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *Memory) RecordEquity(s Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshots = append(j.snapshots, s)
	return nil
}

func (j *Memory) Close() error {
	return nil
}

// Events returns a copy of all recorded events.
func (j *Memory) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// Snapshots returns a copy of all recorded equity snapshots.
func (j *Memory) Snapshots() []Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Snapshot, len(j.snapshots))
	copy(out, j.snapshots)
	return out
}
