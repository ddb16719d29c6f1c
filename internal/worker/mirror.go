// Package worker holds the long-running jobs of dues-worker: the ledger
// mirror fed by AMQP events and the scheduled dues report.
package worker

import (
	"context"
	"errors"
	"fmt"

	"dues/internal/amqp"
	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/sheets"
	"dues/internal/storage"
)

// MirrorWorker copies transactions into the ledger mirror as their events
// arrive.
type MirrorWorker struct {
	transactions storage.TransactionRepository
	mirror       sheets.LedgerMirror
	logger       *log.Logger
}

func NewMirrorWorker(transactions storage.TransactionRepository, mirror sheets.LedgerMirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		transactions: transactions,
		mirror:       mirror,
		logger:       logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent appends a row for transaction create and update events
// and ignores everything else. A returned error requeues the message.
func (w *MirrorWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if msg.EntityType != string(core.EntityTransaction) {
		return nil
	}
	action := core.ActionType(msg.Action)
	if action != core.ActionCreate && action != core.ActionUpdate {
		w.logger.DebugContext(ctx, "Skipping ledger event",
			log.FieldLogID, msg.LogID,
			log.FieldAction, msg.Action)
		return nil
	}

	t, err := w.transactions.GetTransaction(ctx, msg.EntityID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before we got here; nothing left to mirror.
		w.logger.WarnContext(ctx, "Transaction vanished before mirroring",
			log.FieldLogID, msg.LogID,
			log.FieldTransactionID, msg.EntityID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction %s: %w", msg.EntityID, err)
	}

	ref, err := w.mirror.AppendRow(ctx, sheets.RowFromTransaction(t, msg.Action))
	if err != nil {
		return fmt.Errorf("append mirror row: %w", err)
	}

	w.logger.InfoContext(ctx, "Mirrored transaction",
		log.FieldLogID, msg.LogID,
		log.FieldTransactionID, t.ID,
		log.FieldAmountCents, t.Amount.Cents,
		"row_ref", ref)
	return nil
}
