// This file holds the bill creation strategies. Each payment type expands
// one NewBillInput into the bills it stands for.

package services

import (
	"fmt"

	"github.com/google/uuid"

	"dues/internal/core"
)

// PaymentType selects how AddPayableBill expands its input.
type PaymentType string

const (
	PaymentSingle       PaymentType = "single"
	PaymentInstallments PaymentType = "installments"
	PaymentMonthly      PaymentType = "monthly"
)

// DefaultRecurringHorizon is how many monthly occurrences a recurring
// series materializes up front.
const DefaultRecurringHorizon = 12

// NewBillInput describes a bill, an installment plan or a recurring series.
// Amount is per generated bill.
type NewBillInput struct {
	PaymentType  PaymentType `validate:"required,oneof=single installments monthly"`
	Description  string      `validate:"required,max=200"`
	PayeeID      string
	CategoryID   string `validate:"required"`
	Amount       core.Money
	FirstDueDate core.Date
	// Installments is the plan length; only read for PaymentInstallments.
	Installments int `validate:"gte=0,lte=360"`
	IsEstimate   bool
	Notes        string `validate:"max=1000"`
}

// BillScheduler expands an input into unsaved bills.
type BillScheduler interface {
	Schedule(in NewBillInput, horizon int) ([]core.PayableBill, error)
}

type SingleScheduler struct{}

func (SingleScheduler) Schedule(in NewBillInput, _ int) ([]core.PayableBill, error) {
	return []core.PayableBill{newBill(in, in.Description, in.FirstDueDate)}, nil
}

// InstallmentScheduler spaces n bills one calendar month apart, each
// suffixed "(i/n)" and sharing a fresh group id.
type InstallmentScheduler struct{}

func (InstallmentScheduler) Schedule(in NewBillInput, _ int) ([]core.PayableBill, error) {
	n := in.Installments
	if n < 1 {
		return nil, fmt.Errorf("installments must be at least 1, got %d", n)
	}
	group := uuid.NewString()
	bills := make([]core.PayableBill, 0, n)
	for i := 1; i <= n; i++ {
		due := core.DateOf(core.AddMonthsUTC(in.FirstDueDate.Time, i-1))
		b := newBill(in, fmt.Sprintf("%s (%d/%d)", in.Description, i, n), due)
		b.InstallmentInfo = &core.InstallmentInfo{Current: i, Total: n}
		b.InstallmentGroupID = group
		bills = append(bills, b)
	}
	return bills, nil
}

// MonthlyScheduler materializes horizon occurrences sharing a recurring id.
type MonthlyScheduler struct{}

func (MonthlyScheduler) Schedule(in NewBillInput, horizon int) ([]core.PayableBill, error) {
	if horizon < 1 {
		horizon = DefaultRecurringHorizon
	}
	series := uuid.NewString()
	bills := make([]core.PayableBill, 0, horizon)
	for i := 0; i < horizon; i++ {
		b := newBill(in, in.Description, core.DateOf(core.AddMonthsUTC(in.FirstDueDate.Time, i)))
		b.RecurringID = series
		bills = append(bills, b)
	}
	return bills, nil
}

func newBill(in NewBillInput, description string, due core.Date) core.PayableBill {
	return core.PayableBill{
		ID:          uuid.NewString(),
		Description: description,
		PayeeID:     in.PayeeID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		DueDate:     due,
		Status:      core.BillPending,
		IsEstimate:  in.IsEstimate,
		Notes:       in.Notes,
	}
}

// billSchedulers maps payment types to their strategy.
var billSchedulers = map[PaymentType]BillScheduler{
	PaymentSingle:       SingleScheduler{},
	PaymentInstallments: InstallmentScheduler{},
	PaymentMonthly:      MonthlyScheduler{},
}

// GetBillScheduler returns the strategy for a payment type.
func GetBillScheduler(t PaymentType) (BillScheduler, error) {
	s, ok := billSchedulers[t]
	if !ok {
		return nil, fmt.Errorf("unknown payment type: %s", t)
	}
	return s, nil
}
