package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dues/internal/core"
	"dues/internal/storage"
)

const billColumns = `id, description, payee_id, category_id, amount_cents, due_date,
	status, paid_date, transaction_id, attachment_url, installment_current,
	installment_total, installment_group_id, recurring_id, is_estimate, notes`

func scanBill(row rowScanner) (core.PayableBill, error) {
	var (
		b                  core.PayableBill
		amount             int64
		due, paid, status  string
		instCur, instTotal int
		estimate           int
	)
	if err := row.Scan(&b.ID, &b.Description, &b.PayeeID, &b.CategoryID, &amount, &due,
		&status, &paid, &b.TransactionID, &b.AttachmentURL, &instCur,
		&instTotal, &b.InstallmentGroupID, &b.RecurringID, &estimate, &b.Notes); err != nil {
		return core.PayableBill{}, err
	}
	b.Amount = core.Money{Cents: amount}
	b.DueDate = parseDate(due)
	b.Status = core.BillStatus(status)
	b.PaidDate = parseOptDate(paid)
	if instTotal > 0 {
		b.InstallmentInfo = &core.InstallmentInfo{Current: instCur, Total: instTotal}
	}
	b.IsEstimate = estimate != 0
	b.NormalizeEstimate()
	return b, nil
}

func installmentColumns(b core.PayableBill) (int, int) {
	if b.InstallmentInfo == nil {
		return 0, 0
	}
	return b.InstallmentInfo.Current, b.InstallmentInfo.Total
}

func (s *Store) ListBills(ctx context.Context, f storage.BillFilter) ([]core.PayableBill, error) {
	var (
		where []string
		args  []any
	)
	if f.InstallmentGroupID != "" {
		where = append(where, "installment_group_id = ?")
		args = append(args, f.InstallmentGroupID)
	}
	if f.RecurringID != "" {
		where = append(where, "recurring_id = ?")
		args = append(args, f.RecurringID)
	}
	if !f.DueFrom.IsZero() {
		where = append(where, "due_date >= ?")
		args = append(args, formatDate(f.DueFrom))
	}
	query := "SELECT " + billColumns + " FROM payable_bills"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date, id"
	return queryRows(ctx, s.db, "list bills", scanBill, query, args...)
}

func (s *Store) GetBill(ctx context.Context, id string) (core.PayableBill, error) {
	b, err := scanBill(s.db.QueryRowContext(ctx, "SELECT "+billColumns+" FROM payable_bills WHERE id = ?", id))
	if err != nil {
		return core.PayableBill{}, fmt.Errorf("get bill %s: %w", id, classify(err, false))
	}
	return b, nil
}

func (s *Store) InsertBill(ctx context.Context, b core.PayableBill) error {
	cur, total := installmentColumns(b)
	_, err := s.db.ExecContext(ctx, "INSERT INTO payable_bills ("+billColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Description, b.PayeeID, b.CategoryID, b.Amount.Cents, formatDate(b.DueDate),
		string(b.Status), formatOptDate(b.PaidDate), b.TransactionID, b.AttachmentURL, cur,
		total, b.InstallmentGroupID, b.RecurringID, boolInt(b.IsEstimate), b.Notes)
	if err != nil {
		return fmt.Errorf("insert bill: %w", classify(err, false))
	}
	return nil
}

func (s *Store) UpdateBill(ctx context.Context, b core.PayableBill) error {
	cur, total := installmentColumns(b)
	return s.exec(ctx, "update bill "+b.ID, false, `UPDATE payable_bills SET
		description = ?, payee_id = ?, category_id = ?, amount_cents = ?, due_date = ?,
		status = ?, paid_date = ?, transaction_id = ?, attachment_url = ?,
		installment_current = ?, installment_total = ?, installment_group_id = ?,
		recurring_id = ?, is_estimate = ?, notes = ?
		WHERE id = ?`,
		b.Description, b.PayeeID, b.CategoryID, b.Amount.Cents, formatDate(b.DueDate),
		string(b.Status), formatOptDate(b.PaidDate), b.TransactionID, b.AttachmentURL,
		cur, total, b.InstallmentGroupID,
		b.RecurringID, boolInt(b.IsEstimate), b.Notes, b.ID)
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	return s.exec(ctx, "delete bill "+id, true, "DELETE FROM payable_bills WHERE id = ?", id)
}

// Categories

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c   core.Category
		typ string
	)
	if err := row.Scan(&c.ID, &c.Name, &typ); err != nil {
		return core.Category{}, err
	}
	c.Type = core.TransactionType(typ)
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	return queryRows(ctx, s.db, "list categories", scanCategory,
		"SELECT id, name, type FROM categories ORDER BY name, id")
}

func (s *Store) GetCategory(ctx context.Context, id string) (core.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, "SELECT id, name, type FROM categories WHERE id = ?", id))
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", id, classify(err, false))
	}
	return c, nil
}

func (s *Store) InsertCategory(ctx context.Context, c core.Category) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO categories (id, name, type) VALUES (?, ?, ?)",
		c.ID, c.Name, string(c.Type))
	if err != nil {
		return fmt.Errorf("insert category: %w", classify(err, false))
	}
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, c core.Category) error {
	return s.exec(ctx, "update category "+c.ID, false,
		"UPDATE categories SET name = ?, type = ? WHERE id = ?", c.Name, string(c.Type), c.ID)
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.exec(ctx, "delete category "+id, true, "DELETE FROM categories WHERE id = ?", id)
}

// Logs

// logTimeLayout is fixed-width so timestamps order lexicographically.
const logTimeLayout = "2006-01-02T15:04:05.000000000Z"

func scanLog(row rowScanner) (core.LogEntry, error) {
	var (
		e          core.LogEntry
		ts         string
		actionType string
		entityType string
		undoData   string
	)
	if err := row.Scan(&e.ID, &ts, &e.Description, &actionType, &entityType, &e.EntityID, &undoData); err != nil {
		return core.LogEntry{}, err
	}
	t, err := time.Parse(logTimeLayout, ts)
	if err != nil {
		return core.LogEntry{}, fmt.Errorf("parse log timestamp %q: %w", ts, err)
	}
	e.Timestamp = t
	e.EntityType = core.EntityType(entityType)
	action, err := core.DecodeUndoAction(core.ActionType(actionType), []byte(undoData))
	if err != nil {
		return core.LogEntry{}, err
	}
	e.Action = action
	return e, nil
}

func (s *Store) AppendLog(ctx context.Context, e core.LogEntry) error {
	actionType, data, err := core.EncodeUndoAction(e.Action)
	if err != nil {
		return fmt.Errorf("encode undo action: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO logs
		(id, timestamp, description, action_type, entity_type, entity_id, undo_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(logTimeLayout), e.Description, string(actionType),
		string(e.EntityType), e.EntityID, string(data))
	if err != nil {
		return fmt.Errorf("append log: %w", classify(err, false))
	}
	return nil
}

// ListLogs returns the newest entries first. A non-positive limit means all.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]core.LogEntry, error) {
	query := `SELECT id, timestamp, description, action_type, entity_type, entity_id, undo_data
		FROM logs ORDER BY timestamp DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryRows(ctx, s.db, "list logs", scanLog, query, args...)
}

func (s *Store) GetLog(ctx context.Context, id string) (core.LogEntry, error) {
	e, err := scanLog(s.db.QueryRowContext(ctx, `SELECT id, timestamp, description, action_type,
		entity_type, entity_id, undo_data FROM logs WHERE id = ?`, id))
	if err != nil {
		return core.LogEntry{}, fmt.Errorf("get log %s: %w", id, classify(err, false))
	}
	return e, nil
}

func (s *Store) SetLogDescription(ctx context.Context, id, description string) error {
	return s.exec(ctx, "set log description "+id, false,
		"UPDATE logs SET description = ? WHERE id = ?", description, id)
}
