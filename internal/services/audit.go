package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dues/internal/amqp"
	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/storage"
)

// EventPublisher announces recorded mutations to other processes.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// undoHandler knows how to invert each action kind for one entity type.
type undoHandler struct {
	remove   func(ctx context.Context, id string) error
	restore  func(ctx context.Context, snapshot json.RawMessage) error
	reinsert func(ctx context.Context, snapshot json.RawMessage) error
}

// AuditLog appends one entry per mutation and replays inverses on demand.
// Undo is not itself logged; there is no redo.
type AuditLog struct {
	logs      storage.LogRepository
	handlers  map[core.EntityType]undoHandler
	publisher EventPublisher
	now       func() time.Time
	logger    *log.Logger

	mu        sync.Mutex
	listeners []func(core.LogEntry)
}

// NewAuditLog wires undo handlers for every entity type in repos. publisher
// may be nil.
func NewAuditLog(repos storage.Repositories, publisher EventPublisher, logger *log.Logger) *AuditLog {
	if logger == nil {
		logger = log.Discard()
	}
	a := &AuditLog{
		logs:      repos.Logs,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentAudit),
	}
	a.handlers = map[core.EntityType]undoHandler{
		core.EntityMember: handlerFor(repos.Members.InsertMember, repos.Members.UpdateMember, repos.Members.DeleteMember),
		core.EntityLeave:  leaveUndoHandler(repos),
		core.EntityPayment: handlerFor(repos.Payments.InsertPayment, repos.Payments.UpdatePayment,
			repos.Payments.DeletePayment),
		core.EntityTransaction: handlerFor(repos.Transactions.InsertTransaction, repos.Transactions.UpdateTransaction,
			repos.Transactions.DeleteTransaction),
		core.EntityBill:     handlerFor(repos.Bills.InsertBill, repos.Bills.UpdateBill, repos.Bills.DeleteBill),
		core.EntityCategory: handlerFor(repos.Categories.InsertCategory, repos.Categories.UpdateCategory, repos.Categories.DeleteCategory),
	}
	return a
}

func handlerFor[T any](
	insert func(context.Context, T) error,
	update func(context.Context, T) error,
	remove func(context.Context, string) error,
) undoHandler {
	decode := func(snapshot json.RawMessage) (T, error) {
		var row T
		if err := json.Unmarshal(snapshot, &row); err != nil {
			return row, fmt.Errorf("decode snapshot: %w", err)
		}
		return row, nil
	}
	return undoHandler{
		remove: remove,
		restore: func(ctx context.Context, snapshot json.RawMessage) error {
			row, err := decode(snapshot)
			if err != nil {
				return err
			}
			return update(ctx, row)
		},
		reinsert: func(ctx context.Context, snapshot json.RawMessage) error {
			row, err := decode(snapshot)
			if err != nil {
				return err
			}
			return insert(ctx, row)
		},
	}
}

// leaveUndoHandler also refreshes the member's cached OnLeave flag.
func leaveUndoHandler(repos storage.Repositories) undoHandler {
	base := handlerFor(repos.Leaves.InsertLeave, repos.Leaves.UpdateLeave, repos.Leaves.DeleteLeave)
	memberOf := func(snapshot json.RawMessage) string {
		var l core.Leave
		_ = json.Unmarshal(snapshot, &l)
		return l.MemberID
	}
	return undoHandler{
		remove: func(ctx context.Context, id string) error {
			l, err := repos.Leaves.GetLeave(ctx, id)
			if err != nil {
				return err
			}
			if err := base.remove(ctx, id); err != nil {
				return err
			}
			return syncOnLeaveFlag(ctx, repos.Members, repos.Leaves, l.MemberID)
		},
		restore: func(ctx context.Context, snapshot json.RawMessage) error {
			if err := base.restore(ctx, snapshot); err != nil {
				return err
			}
			return syncOnLeaveFlag(ctx, repos.Members, repos.Leaves, memberOf(snapshot))
		},
		reinsert: func(ctx context.Context, snapshot json.RawMessage) error {
			if err := base.reinsert(ctx, snapshot); err != nil {
				return err
			}
			return syncOnLeaveFlag(ctx, repos.Members, repos.Leaves, memberOf(snapshot))
		},
	}
}

// OnChange registers fn to run after every recorded or undone entry.
func (a *AuditLog) OnChange(fn func(core.LogEntry)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *AuditLog) notify(e core.LogEntry) {
	a.mu.Lock()
	listeners := append([]func(core.LogEntry){}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}

// Record appends one entry and publishes a ledger event for it. Publish
// failures are logged, never returned.
func (a *AuditLog) Record(ctx context.Context, entityType core.EntityType, entityID, description string, action core.UndoAction) (core.LogEntry, error) {
	entry := core.LogEntry{
		ID:          uuid.NewString(),
		Timestamp:   a.now().UTC(),
		Description: description,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
	}
	if err := a.logs.AppendLog(ctx, entry); err != nil {
		return core.LogEntry{}, fmt.Errorf("append log entry: %w", err)
	}

	a.logger.LogMutation(ctx, string(entry.ActionType()), string(entityType), entityID)
	a.publish(ctx, entry)
	a.notify(entry)
	return entry, nil
}

func (a *AuditLog) publish(ctx context.Context, e core.LogEntry) {
	if a.publisher == nil {
		return
	}
	msg := amqp.NewLedgerEventMessage(e.ID, string(e.EntityType), e.EntityID, string(e.ActionType()))
	if err := a.publisher.PublishLedgerEvent(ctx, msg); err != nil {
		a.logger.LogSoftFailure(ctx, "Failed to publish ledger event", err, log.OpPublish,
			log.NewFields().WithEntity(string(e.EntityType), e.EntityID))
	}
}

// GetLogs returns the newest entries first; limit <= 0 means all.
func (a *AuditLog) GetLogs(ctx context.Context, limit int) ([]core.LogEntry, error) {
	entries, err := a.logs.ListLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return entries, nil
}

// Undo replays the inverse of one entry and marks it as undone. Only the
// record the entry targets is reverted; side effects of the original
// operation on other records stay.
func (a *AuditLog) Undo(ctx context.Context, logID string) error {
	entry, err := a.logs.GetLog(ctx, logID)
	if err != nil {
		return fmt.Errorf("get log %s: %w", logID, err)
	}
	if entry.IsUndone() {
		return fmt.Errorf("undo %s: %w", logID, core.ErrAlreadyUndone)
	}

	h, ok := a.handlers[entry.EntityType]
	if !ok {
		return fmt.Errorf("undo %s: no handler for entity type %q", logID, entry.EntityType)
	}

	switch act := entry.Action.(type) {
	case core.CreateAction:
		err = h.remove(ctx, act.ID)
	case core.UpdateAction:
		err = h.restore(ctx, act.Snapshot)
	case core.DeleteAction:
		err = h.reinsert(ctx, act.Snapshot)
	default:
		err = fmt.Errorf("unknown undo action %T", entry.Action)
	}
	if err != nil {
		return fmt.Errorf("undo %s %s: %w", entry.ActionType(), entry.EntityType, err)
	}

	if err := a.logs.SetLogDescription(ctx, logID, core.UndoneMarker+entry.Description); err != nil {
		return fmt.Errorf("mark log %s undone: %w", logID, err)
	}

	a.logger.InfoContext(ctx, "Log entry undone",
		log.FieldLogID, logID,
		log.FieldEntityType, string(entry.EntityType),
		log.FieldEntityID, entry.EntityID,
		log.FieldAction, string(entry.ActionType()))
	a.notify(entry)
	return nil
}

// The helpers below are what the services call. The primary write has
// already committed when they run, so a failing log append is a warning.

func (a *AuditLog) recordCreate(ctx context.Context, et core.EntityType, id, description string) {
	a.record(ctx, et, id, description, core.CreateAction{ID: id})
}

func (a *AuditLog) recordUpdate(ctx context.Context, et core.EntityType, id, description string, before any) {
	if a == nil {
		return
	}
	snap, err := core.NewSnapshot(before)
	if err != nil {
		a.logger.LogSoftFailure(ctx, "Failed to snapshot row", err, log.OpUpdate, nil)
		return
	}
	a.record(ctx, et, id, description, core.UpdateAction{Snapshot: snap})
}

func (a *AuditLog) recordDelete(ctx context.Context, et core.EntityType, id, description string, before any) {
	if a == nil {
		return
	}
	snap, err := core.NewSnapshot(before)
	if err != nil {
		a.logger.LogSoftFailure(ctx, "Failed to snapshot row", err, log.OpDelete, nil)
		return
	}
	a.record(ctx, et, id, description, core.DeleteAction{Snapshot: snap})
}

func (a *AuditLog) record(ctx context.Context, et core.EntityType, id, description string, action core.UndoAction) {
	if a == nil {
		return
	}
	if _, err := a.Record(ctx, et, id, description, action); err != nil {
		a.logger.LogSoftFailure(ctx, "Failed to record audit entry", err, log.OpAppend,
			log.NewFields().WithEntity(string(et), id))
		// The write itself committed; listeners still have to see it.
		a.notify(core.LogEntry{EntityType: et, EntityID: id, Action: action})
	}
}
