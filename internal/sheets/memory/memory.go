package memory

import (
	"context"
	"fmt"
	"sync"

	"dues/internal/core"
	ports "dues/internal/sheets"
)

// Store is the mirror used by the memory backend and in tests.
type Store struct {
	mu   sync.Mutex
	rows []ports.LedgerRow
}

var (
	_ ports.LedgerMirror = (*Store)(nil)
	_ ports.RowLister    = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, row ports.LedgerRow) (string, error) {
	if err := row.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) ListRows(_ context.Context, month core.MonthKey) ([]ports.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.LedgerRow
	for _, r := range s.rows {
		if core.MonthKeyOf(r.Date.Time) == month {
			out = append(out, r)
		}
	}
	return out, nil
}

// Rows returns every stored row in append order.
func (s *Store) Rows() []ports.LedgerRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.LedgerRow(nil), s.rows...)
}
