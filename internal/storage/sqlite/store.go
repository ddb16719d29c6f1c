// Package sqlite is the SQLite row store behind every storage port.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dues/internal/core"
	"dues/internal/storage"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Ensure interface conformance
var (
	_ storage.MemberRepository      = (*Store)(nil)
	_ storage.LeaveRepository       = (*Store)(nil)
	_ storage.PaymentRepository     = (*Store)(nil)
	_ storage.TransactionRepository = (*Store)(nil)
	_ storage.BillRepository        = (*Store)(nil)
	_ storage.CategoryRepository    = (*Store)(nil)
	_ storage.LogRepository         = (*Store)(nil)
)

// New opens (creating if needed) the database at dbPath and applies the
// embedded migrations.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Repositories exposes the store through every port.
func (s *Store) Repositories() storage.Repositories {
	return storage.Repositories{
		Members:      s,
		Leaves:       s,
		Payments:     s,
		Transactions: s,
		Bills:        s,
		Categories:   s,
		Logs:         s,
	}
}

// classify maps driver errors onto the core taxonomy.
func classify(err error, deleting bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("%w: %v", core.ErrSchemaUnavailable, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed") && deleting:
		return fmt.Errorf("%w: %v", core.ErrInUse, err)
	case strings.Contains(msg, "constraint failed"):
		return fmt.Errorf("%w: %v", core.ErrConstraint, err)
	}
	return err
}

// exec runs a single-row write and reports ErrNotFound when nothing matched.
func (s *Store) exec(ctx context.Context, what string, deleting bool, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, classify(err, deleting))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return nil
}

func formatDate(d core.Date) string {
	return d.String()
}

func formatOptDate(d *core.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// parseDate tolerates bad stored values by returning the zero Date; callers
// that care (the dues engine) treat zero as invalid.
func parseDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func parseOptDate(s string) *core.Date {
	d := parseDate(s)
	if d.IsZero() {
		return nil
	}
	return &d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
