package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dues/internal/core"
	"dues/internal/storage"
)

// Payments

const paymentColumns = `id, member_id, amount_cents, payment_date, reference_month,
	transaction_id, attachment_url, comments`

func scanPayment(row rowScanner) (core.Payment, error) {
	var (
		p           core.Payment
		amount      int64
		paymentDate string
		month       string
	)
	if err := row.Scan(&p.ID, &p.MemberID, &amount, &paymentDate, &month,
		&p.TransactionID, &p.AttachmentURL, &p.Comments); err != nil {
		return core.Payment{}, err
	}
	p.Amount = core.Money{Cents: amount}
	p.PaymentDate = parseDate(paymentDate)
	p.ReferenceMonth = core.MonthKey(month)
	return p, nil
}

func (s *Store) ListPaymentsByMember(ctx context.Context, memberID string) ([]core.Payment, error) {
	return queryRows(ctx, s.db, "list payments by member", scanPayment,
		"SELECT "+paymentColumns+" FROM payments WHERE member_id = ? ORDER BY reference_month, id", memberID)
}

func (s *Store) ListPaymentsByTransaction(ctx context.Context, transactionID string) ([]core.Payment, error) {
	if transactionID == "" {
		return nil, nil
	}
	return queryRows(ctx, s.db, "list payments by transaction", scanPayment,
		"SELECT "+paymentColumns+" FROM payments WHERE transaction_id = ? ORDER BY reference_month, id", transactionID)
}

func (s *Store) FindPayments(ctx context.Context, memberID string, month core.MonthKey) ([]core.Payment, error) {
	return queryRows(ctx, s.db, "find payments", scanPayment,
		"SELECT "+paymentColumns+" FROM payments WHERE member_id = ? AND reference_month = ? ORDER BY id",
		memberID, string(month))
}

func (s *Store) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment %s: %w", id, classify(err, false))
	}
	return p, nil
}

func (s *Store) InsertPayment(ctx context.Context, p core.Payment) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.MemberID, p.Amount.Cents, formatDate(p.PaymentDate), string(p.ReferenceMonth),
		p.TransactionID, p.AttachmentURL, p.Comments)
	if err != nil {
		return fmt.Errorf("insert payment: %w", classify(err, false))
	}
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p core.Payment) error {
	return s.exec(ctx, "update payment "+p.ID, false, `UPDATE payments SET
		member_id = ?, amount_cents = ?, payment_date = ?, reference_month = ?,
		transaction_id = ?, attachment_url = ?, comments = ?
		WHERE id = ?`,
		p.MemberID, p.Amount.Cents, formatDate(p.PaymentDate), string(p.ReferenceMonth),
		p.TransactionID, p.AttachmentURL, p.Comments, p.ID)
}

func (s *Store) DeletePayment(ctx context.Context, id string) error {
	return s.exec(ctx, "delete payment "+id, true, "DELETE FROM payments WHERE id = ?", id)
}

// Transactions

const transactionColumns = `id, description, amount_cents, date, type, account_id,
	category_id, payee_id, project_id, tag_ids, comments, attachment_url, payable_bill_id`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t      core.Transaction
		amount int64
		date   string
		typ    string
		tags   string
	)
	if err := row.Scan(&t.ID, &t.Description, &amount, &date, &typ, &t.AccountID,
		&t.CategoryID, &t.PayeeID, &t.ProjectID, &tags, &t.Comments, &t.AttachmentURL,
		&t.PayableBillID); err != nil {
		return core.Transaction{}, err
	}
	t.Amount = core.Money{Cents: amount}
	t.Date = parseDate(date)
	t.Type = core.TransactionType(typ)
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &t.TagIDs); err != nil {
			return core.Transaction{}, fmt.Errorf("decode tag ids: %w", err)
		}
	}
	return t, nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tag ids: %w", err)
	}
	return string(data), nil
}

func (s *Store) ListTransactions(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.UnlinkedOnly {
		where = append(where, "payable_bill_id = ''")
	}
	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id"
	return queryRows(ctx, s.db, "list transactions", scanTransaction, query, args...)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, classify(err, false))
	}
	return t, nil
}

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) error {
	tags, err := encodeTags(t.TagIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO transactions ("+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Amount.Cents, formatDate(t.Date), string(t.Type), t.AccountID,
		t.CategoryID, t.PayeeID, t.ProjectID, tags, t.Comments, t.AttachmentURL, t.PayableBillID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", classify(err, false))
	}
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	tags, err := encodeTags(t.TagIDs)
	if err != nil {
		return err
	}
	return s.exec(ctx, "update transaction "+t.ID, false, `UPDATE transactions SET
		description = ?, amount_cents = ?, date = ?, type = ?, account_id = ?,
		category_id = ?, payee_id = ?, project_id = ?, tag_ids = ?, comments = ?,
		attachment_url = ?, payable_bill_id = ?
		WHERE id = ?`,
		t.Description, t.Amount.Cents, formatDate(t.Date), string(t.Type), t.AccountID,
		t.CategoryID, t.PayeeID, t.ProjectID, tags, t.Comments,
		t.AttachmentURL, t.PayableBillID, t.ID)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.exec(ctx, "delete transaction "+id, true, "DELETE FROM transactions WHERE id = ?", id)
}
