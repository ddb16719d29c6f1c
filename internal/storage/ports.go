// Package storage defines the row-store ports consumed by the services.
//
// Each entity gets its own repository interface so tests can swap in the
// in-memory store. Implementations return core.ErrNotFound for missing rows,
// core.ErrInUse for foreign-key violations and core.ErrSchemaUnavailable when
// the backing table does not exist. Writes are last-write-wins, one row per
// statement; there are no cross-table transactions.
package storage

import (
	"context"

	"dues/internal/core"
)

type (
	MemberFilter struct {
		Statuses []core.ActivityStatus
		// Search matches a case-insensitive substring of the name.
		Search string
	}

	TransactionFilter struct {
		Type      core.TransactionType
		AccountID string
		// UnlinkedOnly keeps rows without a payable bill back-link.
		UnlinkedOnly bool
	}

	BillFilter struct {
		InstallmentGroupID string
		RecurringID        string
		// DueFrom keeps bills due on or after this date when set.
		DueFrom core.Date
	}

	MemberRepository interface {
		ListMembers(ctx context.Context, f MemberFilter) ([]core.Member, error)
		GetMember(ctx context.Context, id string) (core.Member, error)
		InsertMember(ctx context.Context, m core.Member) error
		UpdateMember(ctx context.Context, m core.Member) error
		DeleteMember(ctx context.Context, id string) error
		SetMemberOnLeave(ctx context.Context, id string, onLeave bool) error
	}

	LeaveRepository interface {
		ListLeavesByMember(ctx context.Context, memberID string) ([]core.Leave, error)
		GetLeave(ctx context.Context, id string) (core.Leave, error)
		InsertLeave(ctx context.Context, l core.Leave) error
		UpdateLeave(ctx context.Context, l core.Leave) error
		DeleteLeave(ctx context.Context, id string) error
	}

	PaymentRepository interface {
		ListPaymentsByMember(ctx context.Context, memberID string) ([]core.Payment, error)
		ListPaymentsByTransaction(ctx context.Context, transactionID string) ([]core.Payment, error)
		FindPayments(ctx context.Context, memberID string, month core.MonthKey) ([]core.Payment, error)
		GetPayment(ctx context.Context, id string) (core.Payment, error)
		InsertPayment(ctx context.Context, p core.Payment) error
		UpdatePayment(ctx context.Context, p core.Payment) error
		DeletePayment(ctx context.Context, id string) error
	}

	TransactionRepository interface {
		ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		InsertTransaction(ctx context.Context, t core.Transaction) error
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
	}

	BillRepository interface {
		ListBills(ctx context.Context, f BillFilter) ([]core.PayableBill, error)
		GetBill(ctx context.Context, id string) (core.PayableBill, error)
		InsertBill(ctx context.Context, b core.PayableBill) error
		UpdateBill(ctx context.Context, b core.PayableBill) error
		DeleteBill(ctx context.Context, id string) error
	}

	CategoryRepository interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		GetCategory(ctx context.Context, id string) (core.Category, error)
		InsertCategory(ctx context.Context, c core.Category) error
		UpdateCategory(ctx context.Context, c core.Category) error
		// DeleteCategory fails with core.ErrInUse while transactions or
		// bills still reference the category.
		DeleteCategory(ctx context.Context, id string) error
	}

	LogRepository interface {
		AppendLog(ctx context.Context, e core.LogEntry) error
		ListLogs(ctx context.Context, limit int) ([]core.LogEntry, error)
		GetLog(ctx context.Context, id string) (core.LogEntry, error)
		SetLogDescription(ctx context.Context, id, description string) error
	}

	// Repositories bundles every port of one backend.
	Repositories struct {
		Members      MemberRepository
		Leaves       LeaveRepository
		Payments     PaymentRepository
		Transactions TransactionRepository
		Bills        BillRepository
		Categories   CategoryRepository
		Logs         LogRepository
	}
)
