// Package sheets mirrors ledger transactions into a spreadsheet for
// bookkeepers who work outside the engine. The mirror is append-only: every
// create or update event adds one row.
package sheets

import (
	"context"
	"errors"
	"strings"

	"dues/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerMirror appends one transaction row.
	LedgerMirror interface {
		AppendRow(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}

	// RowLister reads back the rows mirrored for one month.
	RowLister interface {
		ListRows(ctx context.Context, month core.MonthKey) ([]LedgerRow, error)
	}
)

// LedgerRow is one mirrored transaction. Columns A..H in sheet order.
type LedgerRow struct {
	Date          core.Date
	Description   string
	Amount        core.Money
	Type          core.TransactionType
	AccountID     string
	CategoryID    string
	Action        string
	TransactionID string
}

var (
	ErrEmptyTransactionID = errors.New("row has no transaction id")
	ErrEmptyAction        = errors.New("row has no action")
)

// RowFromTransaction builds the mirror row for t as seen after action.
func RowFromTransaction(t core.Transaction, action string) LedgerRow {
	return LedgerRow{
		Date:          t.Date,
		Description:   strings.TrimSpace(t.Description),
		Amount:        t.Amount,
		Type:          t.Type,
		AccountID:     t.AccountID,
		CategoryID:    t.CategoryID,
		Action:        action,
		TransactionID: t.ID,
	}
}

func (r LedgerRow) Validate() error {
	if r.TransactionID == "" {
		return ErrEmptyTransactionID
	}
	if r.Action == "" {
		return ErrEmptyAction
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	return r.Amount.Validate()
}

// Values renders the row as sheet cells.
func (r LedgerRow) Values() []any {
	return []any{
		r.Date.String(),
		r.Description,
		r.Amount.String(),
		string(r.Type),
		r.AccountID,
		r.CategoryID,
		r.Action,
		r.TransactionID,
	}
}
