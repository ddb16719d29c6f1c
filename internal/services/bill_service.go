package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"dues/internal/blob"
	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/storage"
)

// BillServiceConfig tunes bill creation.
type BillServiceConfig struct {
	// RecurringHorizon is how many occurrences a monthly series creates.
	RecurringHorizon int
}

func DefaultBillServiceConfig() BillServiceConfig {
	return BillServiceConfig{RecurringHorizon: DefaultRecurringHorizon}
}

// PayBillInput settles a bill with a new expense built from the bill itself.
type PayBillInput struct {
	AccountID  string `validate:"required"`
	PaidDate   core.Date
	Comments   string
	Attachment *blob.Attachment
}

// PaymentResult is the outcome of paying a bill. Warning is set when the
// attachment could not be stored.
type PaymentResult struct {
	Bill        core.PayableBill
	Transaction core.Transaction
	Warning     string
}

// BillService manages payable bills and keeps each paid bill in sync with
// the expense transaction that settled it.
//
// Pending and overdue are never stored: a stored bill is either paid or
// pending and GetAll/Get derive overdue from the due date.
type BillService struct {
	bills    storage.BillRepository
	txns     storage.TransactionRepository
	audit    *AuditLog
	clock    core.Clock
	uploader uploader
	config   BillServiceConfig
	logger   *log.Logger
}

func NewBillService(repos storage.Repositories, audit *AuditLog, store blob.Store, clock core.Clock, config BillServiceConfig, logger *log.Logger) *BillService {
	if logger == nil {
		logger = log.Discard()
	}
	if config.RecurringHorizon < 1 {
		config.RecurringHorizon = DefaultRecurringHorizon
	}
	logger = logger.WithComponent(log.ComponentBills)
	return &BillService{
		bills:    repos.Bills,
		txns:     repos.Transactions,
		audit:    audit,
		clock:    clock,
		uploader: uploader{store: store, folder: "bills", logger: logger},
		config:   config,
		logger:   logger,
	}
}

// GetAll lists bills with their status derived as of today.
func (s *BillService) GetAll(ctx context.Context, f storage.BillFilter) ([]core.PayableBill, error) {
	bills, err := s.bills.ListBills(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	today := s.clock.Today()
	for i := range bills {
		bills[i].Status = bills[i].DeriveStatus(today)
	}
	return bills, nil
}

func (s *BillService) Get(ctx context.Context, id string) (core.PayableBill, error) {
	b, err := s.bills.GetBill(ctx, id)
	if err != nil {
		return core.PayableBill{}, fmt.Errorf("get bill %s: %w", id, err)
	}
	b.Status = b.DeriveStatus(s.clock.Today())
	return b, nil
}

// Add stores one bill as given. Use AddPayableBill for plans and series.
func (s *BillService) Add(ctx context.Context, b core.PayableBill) (core.PayableBill, error) {
	if err := b.Validate(); err != nil {
		return core.PayableBill{}, fmt.Errorf("validate bill: %w", err)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Status = storedStatus(b)
	if err := s.bills.InsertBill(ctx, b); err != nil {
		return core.PayableBill{}, fmt.Errorf("insert bill: %w", err)
	}
	s.audit.recordCreate(ctx, core.EntityBill, b.ID, fmt.Sprintf("Added bill %q", b.Description))
	b.Status = b.DeriveStatus(s.clock.Today())
	return b, nil
}

// Update overwrites a bill's editable fields and pushes them onto the linked
// transaction, if any. Settlement fields (status, transaction link) are not
// editable here. If the transaction cannot be updated the bill is restored.
func (s *BillService) Update(ctx context.Context, b core.PayableBill) (core.PayableBill, error) {
	before, err := s.bills.GetBill(ctx, b.ID)
	if err != nil {
		return core.PayableBill{}, fmt.Errorf("get bill %s: %w", b.ID, err)
	}
	b.Status = storedStatus(before)
	b.TransactionID = before.TransactionID
	if b.IsLinked() && b.PaidDate == nil {
		b.PaidDate = before.PaidDate
	}
	if !b.IsLinked() && b.Status != core.BillPaid {
		b.PaidDate = nil
	}
	if err := b.Validate(); err != nil {
		return core.PayableBill{}, fmt.Errorf("validate bill: %w", err)
	}

	if err := s.bills.UpdateBill(ctx, b); err != nil {
		return core.PayableBill{}, fmt.Errorf("update bill: %w", err)
	}
	if b.IsLinked() {
		if err := s.pushToTransaction(ctx, b); err != nil {
			s.restoreBill(ctx, before)
			return core.PayableBill{}, err
		}
	}

	s.audit.recordUpdate(ctx, core.EntityBill, b.ID, fmt.Sprintf("Updated bill %q", b.Description), before)
	b.Status = b.DeriveStatus(s.clock.Today())
	return b, nil
}

func (s *BillService) pushToTransaction(ctx context.Context, b core.PayableBill) error {
	t, err := s.txns.GetTransaction(ctx, b.TransactionID)
	if err != nil {
		return fmt.Errorf("get linked transaction %s: %w", b.TransactionID, err)
	}
	if err := s.txns.UpdateTransaction(ctx, applyBillToTransaction(b, t)); err != nil {
		return fmt.Errorf("sync transaction %s: %w", t.ID, err)
	}
	s.logger.DebugContext(ctx, "Bill synced to transaction",
		log.FieldBillID, b.ID,
		log.FieldTransactionID, t.ID)
	return nil
}

// Remove deletes one bill. A linked transaction survives but loses its
// back-link.
func (s *BillService) Remove(ctx context.Context, id string) error {
	before, err := s.bills.GetBill(ctx, id)
	if err != nil {
		return fmt.Errorf("get bill %s: %w", id, err)
	}
	return s.deleteBill(ctx, before)
}

func (s *BillService) deleteBill(ctx context.Context, b core.PayableBill) error {
	if err := s.bills.DeleteBill(ctx, b.ID); err != nil {
		return fmt.Errorf("delete bill %s: %w", b.ID, err)
	}
	if b.IsLinked() {
		s.unlinkTransaction(ctx, b.TransactionID)
	}
	s.audit.recordDelete(ctx, core.EntityBill, b.ID, fmt.Sprintf("Removed bill %q", b.Description), b)
	return nil
}

// DeleteInstallmentGroup removes every bill of an installment plan.
func (s *BillService) DeleteInstallmentGroup(ctx context.Context, groupID string) (int, error) {
	if groupID == "" {
		return 0, fmt.Errorf("delete installment group: empty group id: %w", core.ErrConstraint)
	}
	return s.deleteAll(ctx, storage.BillFilter{InstallmentGroupID: groupID}, log.FieldGroupID, groupID)
}

// DeleteFutureRecurring removes the occurrences of a series due on or after
// from. Earlier occurrences are kept.
func (s *BillService) DeleteFutureRecurring(ctx context.Context, recurringID string, from core.Date) (int, error) {
	if recurringID == "" {
		return 0, fmt.Errorf("delete recurring bills: empty recurring id: %w", core.ErrConstraint)
	}
	if from.IsZero() {
		return 0, fmt.Errorf("delete recurring bills: missing start date: %w", core.ErrConstraint)
	}
	return s.deleteAll(ctx, storage.BillFilter{RecurringID: recurringID, DueFrom: from}, log.FieldRecurringID, recurringID)
}

func (s *BillService) deleteAll(ctx context.Context, f storage.BillFilter, key, value string) (int, error) {
	bills, err := s.bills.ListBills(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("list bills: %w", err)
	}
	deleted := 0
	for _, b := range bills {
		if err := s.deleteBill(ctx, b); err != nil {
			return deleted, err
		}
		deleted++
	}
	s.logger.InfoContext(ctx, "Bills deleted", key, value, log.FieldCount, deleted)
	return deleted, nil
}

// AddPayableBill expands in into one or more bills and stores them all. If
// any insert fails the bills already inserted are deleted again.
func (s *BillService) AddPayableBill(ctx context.Context, in NewBillInput) ([]core.PayableBill, error) {
	if err := core.ValidateStruct(in); err != nil {
		return nil, err
	}
	scheduler, err := GetBillScheduler(in.PaymentType)
	if err != nil {
		return nil, err
	}
	bills, err := scheduler.Schedule(in, s.config.RecurringHorizon)
	if err != nil {
		return nil, fmt.Errorf("schedule bills: %w", err)
	}
	for _, b := range bills {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("validate bill: %w", err)
		}
	}

	inserted := make([]core.PayableBill, 0, len(bills))
	for _, b := range bills {
		if err := s.bills.InsertBill(ctx, b); err != nil {
			s.deleteInserted(ctx, inserted)
			return nil, fmt.Errorf("insert bill %q: %w", b.Description, err)
		}
		inserted = append(inserted, b)
	}

	today := s.clock.Today()
	for i := range inserted {
		s.audit.recordCreate(ctx, core.EntityBill, inserted[i].ID, fmt.Sprintf("Added bill %q", inserted[i].Description))
		inserted[i].Status = inserted[i].DeriveStatus(today)
	}
	s.logger.InfoContext(ctx, "Payable bills created",
		"payment_type", string(in.PaymentType),
		log.FieldCount, len(inserted))
	return inserted, nil
}

func (s *BillService) deleteInserted(ctx context.Context, bills []core.PayableBill) {
	for _, b := range bills {
		if err := s.bills.DeleteBill(ctx, b.ID); err != nil {
			s.logger.LogSoftFailure(ctx, "Failed to revert inserted bill", err, log.OpRevert,
				log.LogFields{log.FieldBillID: b.ID})
		}
	}
}

// PayBill settles a bill with a new expense mirroring it.
func (s *BillService) PayBill(ctx context.Context, billID string, in PayBillInput) (PaymentResult, error) {
	if err := core.ValidateStruct(in); err != nil {
		return PaymentResult{}, err
	}
	b, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("get bill %s: %w", billID, err)
	}
	paid := in.PaidDate
	if paid.IsZero() {
		paid = s.clock.Today()
	}
	t := core.Transaction{
		Description: b.Description,
		Amount:      b.Amount,
		Date:        paid,
		Type:        core.Expense,
		AccountID:   in.AccountID,
		CategoryID:  b.CategoryID,
		PayeeID:     b.PayeeID,
		Comments:    in.Comments,
	}
	if t.Comments == "" {
		t.Comments = b.Notes
	}
	return s.pay(ctx, b, t, in.Attachment)
}

// PayBillWithTransactionData settles a bill with a transaction the caller
// filled in. The transaction is always an expense linked to the bill.
func (s *BillService) PayBillWithTransactionData(ctx context.Context, billID string, t core.Transaction, attachment *blob.Attachment) (PaymentResult, error) {
	b, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("get bill %s: %w", billID, err)
	}
	if t.Date.IsZero() {
		t.Date = s.clock.Today()
	}
	t.Type = core.Expense
	return s.pay(ctx, b, t, attachment)
}

func (s *BillService) pay(ctx context.Context, b core.PayableBill, t core.Transaction, attachment *blob.Attachment) (PaymentResult, error) {
	if b.Status == core.BillPaid {
		return PaymentResult{}, fmt.Errorf("bill %s is already paid: %w", b.ID, core.ErrConstraint)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.PayableBillID = b.ID

	var res PaymentResult
	if url, warning := s.uploader.upload(ctx, attachment); url != "" {
		t.AttachmentURL = url
	} else {
		res.Warning = warning
	}
	if t.AttachmentURL == "" {
		t.AttachmentURL = b.AttachmentURL
	}
	if err := t.Validate(); err != nil {
		return PaymentResult{}, fmt.Errorf("validate transaction: %w", err)
	}
	if err := s.txns.InsertTransaction(ctx, t); err != nil {
		return PaymentResult{}, fmt.Errorf("insert transaction: %w", err)
	}

	before := b
	b = markPaid(b, t)
	if err := s.bills.UpdateBill(ctx, b); err != nil {
		if derr := s.txns.DeleteTransaction(ctx, t.ID); derr != nil {
			s.logger.LogSoftFailure(ctx, "Failed to revert payment transaction", derr, log.OpRevert,
				log.LogFields{log.FieldTransactionID: t.ID})
		}
		return PaymentResult{}, fmt.Errorf("mark bill %s paid: %w", b.ID, err)
	}

	s.audit.recordUpdate(ctx, core.EntityBill, b.ID, fmt.Sprintf("Paid bill %q (%s)", b.Description, b.Amount), before)
	s.logger.InfoContext(ctx, "Bill paid",
		log.FieldBillID, b.ID,
		log.FieldTransactionID, t.ID,
		log.FieldAmountCents, b.Amount.Cents)
	res.Bill = b
	res.Transaction = t
	return res, nil
}

// LinkExpenseToBill settles a bill with an existing unlinked expense. The
// bill takes the transaction's mirrored fields and the transaction gets the
// back-link.
func (s *BillService) LinkExpenseToBill(ctx context.Context, transactionID, billID string) (core.PayableBill, error) {
	t, err := s.txns.GetTransaction(ctx, transactionID)
	if err != nil {
		return core.PayableBill{}, fmt.Errorf("get transaction %s: %w", transactionID, err)
	}
	if t.Type != core.Expense {
		return core.PayableBill{}, fmt.Errorf("transaction %s is not an expense: %w", t.ID, core.ErrConstraint)
	}
	if t.PayableBillID != "" {
		return core.PayableBill{}, fmt.Errorf("transaction %s already settles bill %s: %w", t.ID, t.PayableBillID, core.ErrConstraint)
	}
	before, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return core.PayableBill{}, fmt.Errorf("get bill %s: %w", billID, err)
	}
	if before.Status == core.BillPaid {
		return core.PayableBill{}, fmt.Errorf("bill %s is already paid: %w", before.ID, core.ErrConstraint)
	}

	b := markPaid(before, t)
	if err := s.bills.UpdateBill(ctx, b); err != nil {
		return core.PayableBill{}, fmt.Errorf("mark bill %s paid: %w", b.ID, err)
	}
	t.PayableBillID = b.ID
	if err := s.txns.UpdateTransaction(ctx, t); err != nil {
		s.restoreBill(ctx, before)
		return core.PayableBill{}, fmt.Errorf("link transaction %s: %w", t.ID, err)
	}

	s.audit.recordUpdate(ctx, core.EntityBill, b.ID, fmt.Sprintf("Linked expense %q to bill", t.Description), before)
	return b, nil
}

// GetUnlinkedExpenses lists expenses that settle no bill.
func (s *BillService) GetUnlinkedExpenses(ctx context.Context) ([]core.Transaction, error) {
	txns, err := s.txns.ListTransactions(ctx, storage.TransactionFilter{Type: core.Expense, UnlinkedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list unlinked expenses: %w", err)
	}
	return txns, nil
}

// RevertPayment returns a paid bill to unpaid and detaches its transaction,
// which is kept.
func (s *BillService) RevertPayment(ctx context.Context, billID string) (core.PayableBill, error) {
	before, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return core.PayableBill{}, fmt.Errorf("get bill %s: %w", billID, err)
	}
	if before.Status != core.BillPaid && !before.IsLinked() {
		return s.Get(ctx, billID)
	}
	b, err := s.revert(ctx, before)
	if err != nil {
		return core.PayableBill{}, err
	}
	if before.IsLinked() {
		s.unlinkTransaction(ctx, before.TransactionID)
	}
	s.audit.recordUpdate(ctx, core.EntityBill, b.ID, fmt.Sprintf("Reverted payment of bill %q", b.Description), before)
	return b, nil
}

// revert writes the unpaid form of b and returns it with derived status.
func (s *BillService) revert(ctx context.Context, b core.PayableBill) (core.PayableBill, error) {
	b = markUnpaid(b)
	if err := s.bills.UpdateBill(ctx, b); err != nil {
		return core.PayableBill{}, fmt.Errorf("revert bill %s: %w", b.ID, err)
	}
	b.Status = b.DeriveStatus(s.clock.Today())
	return b, nil
}

// revertForDeletedTransaction is called once the transaction settling the
// bill is gone.
func (s *BillService) revertForDeletedTransaction(ctx context.Context, billID, transactionID string) {
	b, err := s.bills.GetBill(ctx, billID)
	if errors.Is(err, core.ErrNotFound) {
		return
	}
	if err == nil && b.TransactionID != transactionID {
		return
	}
	if err == nil {
		_, err = s.revert(ctx, b)
	}
	if err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to revert bill of deleted transaction", err, log.OpRevert,
			log.LogFields{log.FieldBillID: billID, log.FieldTransactionID: transactionID})
	}
}

// syncFromTransaction pushes a linked transaction's edits onto its bill.
func (s *BillService) syncFromTransaction(ctx context.Context, t core.Transaction) error {
	b, err := s.bills.GetBill(ctx, t.PayableBillID)
	if err != nil {
		return fmt.Errorf("get linked bill %s: %w", t.PayableBillID, err)
	}
	if err := s.bills.UpdateBill(ctx, applyTransactionToBill(t, b)); err != nil {
		return fmt.Errorf("sync bill %s: %w", b.ID, err)
	}
	s.logger.DebugContext(ctx, "Transaction synced to bill",
		log.FieldTransactionID, t.ID,
		log.FieldBillID, b.ID)
	return nil
}

// settleWith marks a bill paid by a transaction that already points at it.
func (s *BillService) settleWith(ctx context.Context, billID string, t core.Transaction) error {
	b, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return fmt.Errorf("get bill %s: %w", billID, err)
	}
	if b.Status == core.BillPaid && b.TransactionID != t.ID {
		return fmt.Errorf("bill %s is already paid: %w", b.ID, core.ErrConstraint)
	}
	if err := s.bills.UpdateBill(ctx, markPaid(b, t)); err != nil {
		return fmt.Errorf("mark bill %s paid: %w", b.ID, err)
	}
	return nil
}

func (s *BillService) unlinkTransaction(ctx context.Context, transactionID string) {
	t, err := s.txns.GetTransaction(ctx, transactionID)
	if errors.Is(err, core.ErrNotFound) {
		return
	}
	if err == nil {
		t.PayableBillID = ""
		err = s.txns.UpdateTransaction(ctx, t)
	}
	if err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to clear transaction back-link", err, log.OpUpdate,
			log.LogFields{log.FieldTransactionID: transactionID})
	}
}

func (s *BillService) restoreBill(ctx context.Context, before core.PayableBill) {
	if err := s.bills.UpdateBill(ctx, before); err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to restore bill", err, log.OpRevert,
			log.LogFields{log.FieldBillID: before.ID})
	}
}

// storedStatus drops the derived overdue state before a write.
func storedStatus(b core.PayableBill) core.BillStatus {
	if b.Status == core.BillPaid {
		return core.BillPaid
	}
	return core.BillPending
}
