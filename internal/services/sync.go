package services

import "dues/internal/core"

// A paid bill and its settling transaction mirror each other's description,
// amount, category, payee and attachment. The bill's notes are the
// transaction's comments and the bill's paid date is the transaction's date.
// Whichever side is edited pushes these fields onto the other one.

// applyBillToTransaction returns t with the mirrored fields taken from b.
func applyBillToTransaction(b core.PayableBill, t core.Transaction) core.Transaction {
	t.Description = b.Description
	t.Amount = b.Amount
	t.CategoryID = b.CategoryID
	t.PayeeID = b.PayeeID
	t.AttachmentURL = b.AttachmentURL
	t.Comments = b.Notes
	if b.PaidDate != nil {
		t.Date = *b.PaidDate
	}
	return t
}

// applyTransactionToBill returns b with the mirrored fields taken from t.
func applyTransactionToBill(t core.Transaction, b core.PayableBill) core.PayableBill {
	b.Description = t.Description
	b.Amount = t.Amount
	b.CategoryID = t.CategoryID
	b.PayeeID = t.PayeeID
	b.AttachmentURL = t.AttachmentURL
	b.Notes = t.Comments
	b.PaidDate = t.Date.Ptr()
	return b
}

// markPaid settles b with t.
func markPaid(b core.PayableBill, t core.Transaction) core.PayableBill {
	b = applyTransactionToBill(t, b)
	b.Status = core.BillPaid
	b.TransactionID = t.ID
	return b
}

// markUnpaid clears the settlement fields; the pending/overdue split is
// derived on read.
func markUnpaid(b core.PayableBill) core.PayableBill {
	b.Status = core.BillPending
	b.PaidDate = nil
	b.TransactionID = ""
	b.AttachmentURL = ""
	return b
}
