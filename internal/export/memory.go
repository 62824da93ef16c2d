package export

import (
	"context"
	"sync"
)

// MemoryWriter collects exported rows in memory. Used in tests and when no
// spreadsheet is configured but export calls should still succeed.
type MemoryWriter struct {
	mu   sync.Mutex
	rows []ScoreRow
}

var _ SnapshotWriter = (*MemoryWriter)(nil)

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (m *MemoryWriter) AppendScore(_ context.Context, row ScoreRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

// Rows returns a copy of everything appended so far.
func (m *MemoryWriter) Rows() []ScoreRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScoreRow, len(m.rows))
	copy(out, m.rows)
	return out
}
