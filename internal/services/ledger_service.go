package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"dues/internal/blob"
	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/storage"
)

type (
	// PaymentLink credits part of one income transaction to a member month.
	PaymentLink struct {
		MemberID       string        `validate:"required"`
		ReferenceMonth core.MonthKey `validate:"required,monthkey"`
		Amount         core.Money
	}

	// TransactionResult carries the saved transaction and, when its
	// attachment could not be stored, the warning to show.
	TransactionResult struct {
		Transaction core.Transaction
		Warning     string
	}

	AccountBalance struct {
		AccountID string     `json:"account_id"`
		Income    core.Money `json:"income"`
		Expense   core.Money `json:"expense"`
		Balance   core.Money `json:"balance"`
	}
)

// LedgerService owns transactions and the payment rows they fund.
type LedgerService struct {
	txns     storage.TransactionRepository
	payments storage.PaymentRepository
	members  storage.MemberRepository
	bills    *BillService
	audit    *AuditLog
	clock    core.Clock
	uploader uploader
	logger   *log.Logger
}

func NewLedgerService(repos storage.Repositories, bills *BillService, audit *AuditLog, store blob.Store, clock core.Clock, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		txns:     repos.Transactions,
		payments: repos.Payments,
		members:  repos.Members,
		bills:    bills,
		audit:    audit,
		clock:    clock,
		uploader: uploader{store: store, folder: "transactions", logger: logger},
		logger:   logger,
	}
}

func (s *LedgerService) GetAll(ctx context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	txns, err := s.txns.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

func (s *LedgerService) Get(ctx context.Context, id string) (core.Transaction, error) {
	t, err := s.txns.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// Add stores a transaction. When PayableBillID is set the bill is marked
// paid by it; if that fails the transaction is deleted again.
func (s *LedgerService) Add(ctx context.Context, t core.Transaction, attachment *blob.Attachment) (TransactionResult, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var res TransactionResult
	if url, warning := s.uploader.upload(ctx, attachment); url != "" {
		t.AttachmentURL = url
	} else {
		res.Warning = warning
	}
	if err := t.Validate(); err != nil {
		return TransactionResult{}, fmt.Errorf("validate transaction: %w", err)
	}

	if err := s.txns.InsertTransaction(ctx, t); err != nil {
		return TransactionResult{}, fmt.Errorf("insert transaction: %w", err)
	}
	if t.PayableBillID != "" {
		if err := s.bills.settleWith(ctx, t.PayableBillID, t); err != nil {
			s.deleteInserted(ctx, t.ID)
			return TransactionResult{}, err
		}
	}

	s.audit.recordCreate(ctx, core.EntityTransaction, t.ID, fmt.Sprintf("Added %s %q (%s)", t.Type, t.Description, t.Amount))
	res.Transaction = t
	return res, nil
}

// Update overwrites a transaction and pushes the mirrored fields onto its
// bill. The bill link itself cannot be changed here. If the bill cannot be
// synced the transaction is restored.
func (s *LedgerService) Update(ctx context.Context, t core.Transaction, attachment *blob.Attachment) (TransactionResult, error) {
	before, err := s.txns.GetTransaction(ctx, t.ID)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("get transaction %s: %w", t.ID, err)
	}
	t.PayableBillID = before.PayableBillID

	var res TransactionResult
	if url, warning := s.uploader.upload(ctx, attachment); url != "" {
		t.AttachmentURL = url
	} else {
		res.Warning = warning
	}
	if err := t.Validate(); err != nil {
		return TransactionResult{}, fmt.Errorf("validate transaction: %w", err)
	}

	if err := s.txns.UpdateTransaction(ctx, t); err != nil {
		return TransactionResult{}, fmt.Errorf("update transaction: %w", err)
	}
	if t.PayableBillID != "" {
		if err := s.bills.syncFromTransaction(ctx, t); err != nil {
			if rerr := s.txns.UpdateTransaction(ctx, before); rerr != nil {
				s.logger.LogSoftFailure(ctx, "Failed to restore transaction", rerr, log.OpRevert,
					log.LogFields{log.FieldTransactionID: t.ID})
			}
			return TransactionResult{}, err
		}
	}

	s.audit.recordUpdate(ctx, core.EntityTransaction, t.ID, fmt.Sprintf("Updated %s %q", t.Type, t.Description), before)
	res.Transaction = t
	return res, nil
}

// Remove deletes a transaction, deletes the payments it funded and returns
// its bill, if any, to unpaid.
func (s *LedgerService) Remove(ctx context.Context, id string) error {
	before, err := s.txns.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", id, err)
	}
	if err := s.txns.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	payments, err := s.payments.ListPaymentsByTransaction(ctx, id)
	if err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to list payments of deleted transaction", err, log.OpDelete,
			log.LogFields{log.FieldTransactionID: id})
	}
	for _, p := range payments {
		if err := s.payments.DeletePayment(ctx, p.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
			s.logger.LogSoftFailure(ctx, "Failed to delete payment of deleted transaction", err, log.OpDelete,
				log.LogFields{log.FieldPaymentID: p.ID, log.FieldTransactionID: id})
		}
	}
	if before.PayableBillID != "" {
		s.bills.revertForDeletedTransaction(ctx, before.PayableBillID, id)
	}

	s.audit.recordDelete(ctx, core.EntityTransaction, id, fmt.Sprintf("Removed %s %q", before.Type, before.Description), before)
	return nil
}

// SetMultiplePaymentLinks makes links the exact set of payments funded by
// one transaction. Payments currently pointing at it are unlinked first;
// then each link reuses the member's unlinked payment for that month, or
// gets a new row. Calling it twice with the same links leaves the same rows.
func (s *LedgerService) SetMultiplePaymentLinks(ctx context.Context, transactionID string, links []PaymentLink, paymentDate core.Date) ([]core.Payment, error) {
	t, err := s.txns.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", transactionID, err)
	}
	if t.Type != core.Income {
		return nil, fmt.Errorf("transaction %s is not income: %w", t.ID, core.ErrConstraint)
	}
	for _, l := range links {
		if err := core.ValidateStruct(l); err != nil {
			return nil, err
		}
		if err := l.Amount.Validate(); err != nil {
			return nil, fmt.Errorf("link %s %s: %w", l.MemberID, l.ReferenceMonth, err)
		}
		if _, err := s.members.GetMember(ctx, l.MemberID); err != nil {
			return nil, fmt.Errorf("get member %s: %w", l.MemberID, err)
		}
	}
	if paymentDate.IsZero() {
		paymentDate = t.Date
	}

	current, err := s.payments.ListPaymentsByTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list linked payments: %w", err)
	}
	for _, p := range current {
		before := p
		p.TransactionID = ""
		p.PaymentDate = core.Date{}
		if err := s.payments.UpdatePayment(ctx, p); err != nil {
			return nil, fmt.Errorf("unlink payment %s: %w", p.ID, err)
		}
		s.audit.recordUpdate(ctx, core.EntityPayment, p.ID, fmt.Sprintf("Unlinked payment for %s", p.ReferenceMonth), before)
	}

	linked := make([]core.Payment, 0, len(links))
	for _, l := range links {
		p, err := s.linkPayment(ctx, t.ID, l, paymentDate)
		if err != nil {
			return linked, err
		}
		linked = append(linked, p)
	}

	s.logger.InfoContext(ctx, "Payment links set",
		log.FieldTransactionID, t.ID,
		log.FieldCount, len(linked))
	return linked, nil
}

func (s *LedgerService) linkPayment(ctx context.Context, transactionID string, l PaymentLink, date core.Date) (core.Payment, error) {
	existing, err := s.payments.FindPayments(ctx, l.MemberID, l.ReferenceMonth)
	if err != nil {
		return core.Payment{}, fmt.Errorf("find payments: %w", err)
	}
	for _, p := range existing {
		if !p.IsHistorical() {
			continue
		}
		before := p
		p.TransactionID = transactionID
		p.PaymentDate = date
		p.Amount = l.Amount
		if err := s.payments.UpdatePayment(ctx, p); err != nil {
			return core.Payment{}, fmt.Errorf("link payment %s: %w", p.ID, err)
		}
		s.audit.recordUpdate(ctx, core.EntityPayment, p.ID, fmt.Sprintf("Linked payment for %s", p.ReferenceMonth), before)
		return p, nil
	}

	p := core.Payment{
		ID:             uuid.NewString(),
		MemberID:       l.MemberID,
		Amount:         l.Amount,
		PaymentDate:    date,
		ReferenceMonth: l.ReferenceMonth,
		TransactionID:  transactionID,
	}
	if err := s.payments.InsertPayment(ctx, p); err != nil {
		return core.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	s.audit.recordCreate(ctx, core.EntityPayment, p.ID, fmt.Sprintf("Added payment for %s", p.ReferenceMonth))
	return p, nil
}

// AccountBalances sums income minus expense per account. Only ledger
// transactions count; historical payments have none.
func (s *LedgerService) AccountBalances(ctx context.Context) ([]AccountBalance, error) {
	txns, err := s.txns.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	byAccount := map[string]*AccountBalance{}
	for _, t := range txns {
		b, ok := byAccount[t.AccountID]
		if !ok {
			b = &AccountBalance{AccountID: t.AccountID}
			byAccount[t.AccountID] = b
		}
		switch t.Type {
		case core.Income:
			b.Income = b.Income.Add(t.Amount)
		case core.Expense:
			b.Expense = b.Expense.Add(t.Amount)
		}
	}
	out := make([]AccountBalance, 0, len(byAccount))
	for _, b := range byAccount {
		b.Balance = b.Income.Sub(b.Expense)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (s *LedgerService) deleteInserted(ctx context.Context, id string) {
	if err := s.txns.DeleteTransaction(ctx, id); err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to revert inserted transaction", err, log.OpRevert,
			log.LogFields{log.FieldTransactionID: id})
	}
}
