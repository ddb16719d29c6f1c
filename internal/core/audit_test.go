package core

import "testing"

func TestUndoActionEncoding(t *testing.T) {
	snap, err := NewSnapshot(Category{ID: "c1", Name: "Rent", Type: Expense})
	if err != nil {
		t.Fatal(err)
	}
	actions := []UndoAction{
		CreateAction{ID: "abc"},
		UpdateAction{Snapshot: snap},
		DeleteAction{Snapshot: snap},
	}
	for _, a := range actions {
		kind, data, err := EncodeUndoAction(a)
		if err != nil {
			t.Fatalf("encode %T: %v", a, err)
		}
		if kind != a.ActionType() {
			t.Fatalf("encode %T kind = %s", a, kind)
		}
		back, err := DecodeUndoAction(kind, data)
		if err != nil {
			t.Fatalf("decode %s: %v", kind, err)
		}
		if back.ActionType() != a.ActionType() {
			t.Fatalf("decoded %T as %T", a, back)
		}
	}

	back, _ := DecodeUndoAction(ActionCreate, []byte(`{"id":"abc"}`))
	if back.(CreateAction).ID != "abc" {
		t.Fatalf("create id lost: %+v", back)
	}
	if _, err := DecodeUndoAction("rename", nil); err == nil {
		t.Fatalf("unknown action type should fail")
	}
}

func TestLogEntryIsUndone(t *testing.T) {
	e := LogEntry{Description: "Created member Ana"}
	if e.IsUndone() {
		t.Fatal("fresh entry reported as undone")
	}
	e.Description = UndoneMarker + e.Description
	if !e.IsUndone() {
		t.Fatal("prefixed entry not reported as undone")
	}
}
