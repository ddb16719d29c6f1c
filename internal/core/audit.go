package core

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

const (
	EntityMember      EntityType = "member"
	EntityLeave       EntityType = "leave"
	EntityPayment     EntityType = "payment"
	EntityTransaction EntityType = "transaction"
	EntityBill        EntityType = "payable_bill"
	EntityCategory    EntityType = "category"
)

// UndoneMarker prefixes the description of a log entry once it was undone.
const UndoneMarker = "[UNDONE] "

type (
	ActionType string
	EntityType string

	// UndoAction is the inverse of a logged mutation. It is one of
	// CreateAction, UpdateAction or DeleteAction.
	UndoAction interface {
		ActionType() ActionType
		isUndoAction()
	}

	// CreateAction undoes a create by deleting the row.
	CreateAction struct {
		ID string `json:"id"`
	}

	// UpdateAction undoes an update by overwriting with the before-image.
	UpdateAction struct {
		Snapshot json.RawMessage
	}

	// DeleteAction undoes a delete by re-inserting the before-image.
	DeleteAction struct {
		Snapshot json.RawMessage
	}

	LogEntry struct {
		ID          string
		Timestamp   time.Time
		Description string
		EntityType  EntityType
		EntityID    string
		Action      UndoAction
	}
)

func (CreateAction) ActionType() ActionType { return ActionCreate }
func (UpdateAction) ActionType() ActionType { return ActionUpdate }
func (DeleteAction) ActionType() ActionType { return ActionDelete }

func (CreateAction) isUndoAction() {}
func (UpdateAction) isUndoAction() {}
func (DeleteAction) isUndoAction() {}

// NewSnapshot marshals the before-image of a row.
func NewSnapshot(row any) (json.RawMessage, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// EncodeUndoAction returns the persisted form of an action.
func EncodeUndoAction(a UndoAction) (ActionType, []byte, error) {
	switch act := a.(type) {
	case CreateAction:
		data, err := json.Marshal(act)
		return ActionCreate, data, err
	case UpdateAction:
		return ActionUpdate, []byte(act.Snapshot), nil
	case DeleteAction:
		return ActionDelete, []byte(act.Snapshot), nil
	default:
		return "", nil, fmt.Errorf("unknown undo action %T", a)
	}
}

// DecodeUndoAction rebuilds an action from its persisted form.
func DecodeUndoAction(t ActionType, data []byte) (UndoAction, error) {
	switch t {
	case ActionCreate:
		var act CreateAction
		if err := json.Unmarshal(data, &act); err != nil {
			return nil, fmt.Errorf("decode create undo data: %w", err)
		}
		return act, nil
	case ActionUpdate:
		return UpdateAction{Snapshot: json.RawMessage(data)}, nil
	case ActionDelete:
		return DeleteAction{Snapshot: json.RawMessage(data)}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
}

// IsUndone reports whether the entry was already reversed.
func (e LogEntry) IsUndone() bool {
	return len(e.Description) >= len(UndoneMarker) && e.Description[:len(UndoneMarker)] == UndoneMarker
}

func (e LogEntry) ActionType() ActionType {
	if e.Action == nil {
		return ""
	}
	return e.Action.ActionType()
}
