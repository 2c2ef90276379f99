package history

import (
	"context"
	"sync"

	"github.com/kilianp07/parkcast/core/model"
)

// MemoryLog keeps records in process memory. It backs tests and deployments
// that do not need durability across restarts.
type MemoryLog struct {
	mu   sync.Mutex
	recs []model.HistoryRecord
	// Err, when set, is returned by Append without storing anything.
	Err error
}

// NewMemoryLog returns an empty MemoryLog.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (m *MemoryLog) Append(_ context.Context, recs []model.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.recs = append(m.recs, recs...)
	return nil
}

func (m *MemoryLog) Query(_ context.Context, q Query) ([]model.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.HistoryRecord
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

// Len returns the number of stored records.
func (m *MemoryLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func (m *MemoryLog) Close() error { return nil }
