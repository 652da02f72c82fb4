package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	records []RunRecord
	byID    map[string]int
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// Save inserts a record or replaces the one with the same ID.
func (m *MemoryStore) Save(record RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if i, ok := m.byID[record.ID]; ok {
		m.records[i] = record
		return nil
	}
	m.byID[record.ID] = len(m.records)
	m.records = append(m.records, record)
	return nil
}

func (m *MemoryStore) Get(id string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return m.records[i], nil
}

func (m *MemoryStore) List(filter Filter) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filtered := make([]RunRecord, 0, len(m.records))
	for _, r := range m.records {
		if filter.Dataset != "" && r.Dataset != filter.Dataset {
			continue
		}
		if filter.ProblemType != "" && r.ProblemType != filter.ProblemType {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	return paginate(filtered, filter), nil
}

func (m *MemoryStore) Close() error { return nil }

func paginate(records []RunRecord, filter Filter) []RunRecord {
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start >= len(records) {
		return []RunRecord{}
	}
	end := len(records)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return records[start:end]
}
