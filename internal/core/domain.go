package core

import (
	"errors"
	"strings"
)

const (
	Active     ActivityStatus = "active"
	Inactive   ActivityStatus = "inactive"
	Terminated ActivityStatus = "terminated"
	Archived   ActivityStatus = "archived"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	BillPending BillStatus = "pending"
	BillOverdue BillStatus = "overdue"
	BillPaid    BillStatus = "paid"
)

type (
	ActivityStatus  string
	TransactionType string
	BillStatus      string

	Member struct {
		ID             string         `json:"id"`
		Name           string         `json:"name"`
		Email          string         `json:"email,omitempty"`
		Phone          string         `json:"phone,omitempty"`
		JoinDate       Date           `json:"join_date"`
		MonthlyFee     Money          `json:"monthly_fee"`
		ActivityStatus ActivityStatus `json:"activity_status"`
		IsExempt       bool           `json:"is_exempt"`
		// OnLeave caches "member has an open leave"; dues are recomputed from
		// the leave rows themselves.
		OnLeave  bool   `json:"on_leave"`
		Comments string `json:"comments,omitempty"`
	}

	Leave struct {
		ID        string `json:"id"`
		MemberID  string `json:"member_id"`
		StartDate Date   `json:"start_date"`
		EndDate   *Date  `json:"end_date,omitempty"` // nil while the leave is open
		Reason    string `json:"reason,omitempty"`
	}

	Payment struct {
		ID             string   `json:"id"`
		MemberID       string   `json:"member_id"`
		Amount         Money    `json:"amount"`
		PaymentDate    Date     `json:"payment_date"`
		ReferenceMonth MonthKey `json:"reference_month"`
		// TransactionID is empty for historical payments recorded before the
		// ledger existed; those never count towards account balances.
		TransactionID string `json:"transaction_id,omitempty"`
		AttachmentURL string `json:"attachment_url,omitempty"`
		Comments      string `json:"comments,omitempty"`
	}

	Transaction struct {
		ID            string          `json:"id"`
		Description   string          `json:"description"`
		Amount        Money           `json:"amount"`
		Date          Date            `json:"date"`
		Type          TransactionType `json:"type"`
		AccountID     string          `json:"account_id"`
		CategoryID    string          `json:"category_id"`
		PayeeID       string          `json:"payee_id,omitempty"`
		ProjectID     string          `json:"project_id,omitempty"`
		TagIDs        []string        `json:"tag_ids,omitempty"`
		Comments      string          `json:"comments,omitempty"`
		AttachmentURL string          `json:"attachment_url,omitempty"`
		PayableBillID string          `json:"payable_bill_id,omitempty"`
	}

	InstallmentInfo struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	}

	PayableBill struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		PayeeID     string `json:"payee_id,omitempty"`
		CategoryID  string `json:"category_id"`
		Amount      Money  `json:"amount"`
		DueDate     Date   `json:"due_date"`
		// Status is only authoritative when paid; otherwise it is derived
		// from DueDate on every read.
		Status             BillStatus       `json:"status"`
		PaidDate           *Date            `json:"paid_date,omitempty"`
		TransactionID      string           `json:"transaction_id,omitempty"`
		AttachmentURL      string           `json:"attachment_url,omitempty"`
		InstallmentInfo    *InstallmentInfo `json:"installment_info,omitempty"`
		InstallmentGroupID string           `json:"installment_group_id,omitempty"`
		RecurringID        string           `json:"recurring_id,omitempty"`
		IsEstimate         bool             `json:"is_estimate"`
		Notes              string           `json:"notes,omitempty"`
	}

	Category struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Type TransactionType `json:"type"`
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyAccount     = errors.New("empty account")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidStatus    = errors.New("invalid activity status")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (s ActivityStatus) Valid() bool {
	switch s {
	case Active, Inactive, Terminated, Archived:
		return true
	}
	return false
}

// IsTerminal reports whether the member no longer accrues dues.
func (s ActivityStatus) IsTerminal() bool {
	return s == Terminated || s == Archived
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if m.MonthlyFee.Cents < 0 {
		return ErrInvalidAmount
	}
	if !m.ActivityStatus.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (l Leave) Validate() error {
	if err := l.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if l.EndDate != nil {
		if err := l.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if l.EndDate.Before(l.StartDate.Time) {
			return errors.New("end date must not be before start date")
		}
	}
	return nil
}

// IsOpen reports whether the leave has no end date yet.
func (l Leave) IsOpen() bool {
	return l.EndDate == nil
}

func (p Payment) Validate() error {
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if !p.ReferenceMonth.Valid() {
		return ErrInvalidMonth
	}
	return nil
}

// IsHistorical reports whether the payment was recorded without a ledger
// transaction.
func (p Payment) IsHistorical() bool {
	return p.TransactionID == ""
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (b PayableBill) Validate() error {
	if err := b.DueDate.Validate(); err != nil {
		return errors.New("invalid due date: " + err.Error())
	}
	if len(strings.TrimSpace(b.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// DeriveStatus returns the bill status as of today. Paid is terminal; the
// pending/overdue split is never stored.
func (b PayableBill) DeriveStatus(today Date) BillStatus {
	if b.Status == BillPaid {
		return BillPaid
	}
	if b.DueDate.Before(today.Time) {
		return BillOverdue
	}
	return BillPending
}

// IsLinked reports whether the bill has a settling transaction.
func (b PayableBill) IsLinked() bool {
	return b.TransactionID != ""
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}
