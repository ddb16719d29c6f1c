package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"dues/internal/core"
)

func TestAuditLog_UndoCreateRemovesEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 10))
	m, err := env.members.AddMember(ctx, NewMemberInput{Name: "Ana", JoinDate: core.NewDate(2025, 1, 1)})
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	entries := env.logs(t)
	if len(entries) != 1 || entries[0].EntityType != core.EntityMember || entries[0].EntityID != m.ID {
		t.Fatalf("entries = %+v", entries)
	}
	if err := env.audit.Undo(ctx, entries[0].ID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if _, err := env.repos.Members.GetMember(ctx, m.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("member still present after undo: %v", err)
	}

	entries = env.logs(t)
	if !strings.HasPrefix(entries[0].Description, core.UndoneMarker) {
		t.Errorf("description = %q, want %q prefix", entries[0].Description, core.UndoneMarker)
	}
	if err := env.audit.Undo(ctx, entries[0].ID); !errors.Is(err, core.ErrAlreadyUndone) {
		t.Errorf("second Undo() error = %v, want ErrAlreadyUndone", err)
	}
}

func TestAuditLog_UndoUpdateRestoresEveryField(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 10))
	bills, err := env.bills.AddPayableBill(ctx, NewBillInput{
		PaymentType: PaymentInstallments, Description: "Bike", CategoryID: "utilities",
		Amount: core.Cents(12000), FirstDueDate: core.NewDate(2025, 4, 1), Installments: 2,
		IsEstimate: true, Notes: "quote",
	})
	if err != nil {
		t.Fatalf("AddPayableBill() error = %v", err)
	}
	original, _ := env.repos.Bills.GetBill(ctx, bills[0].ID)

	edit := original
	edit.Description = "Bike, final"
	edit.Amount = core.Cents(13000)
	edit.IsEstimate = false
	edit.Notes = ""
	edit.DueDate = core.NewDate(2025, 4, 5)
	if _, err := env.bills.Update(ctx, edit); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	entries := env.logs(t)
	if entries[0].ActionType() != core.ActionUpdate {
		t.Fatalf("latest entry action = %s, want update", entries[0].ActionType())
	}
	if err := env.audit.Undo(ctx, entries[0].ID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	restored, _ := env.repos.Bills.GetBill(ctx, bills[0].ID)
	if !reflect.DeepEqual(restored, original) {
		t.Errorf("restored bill differs:\n got  %+v\n want %+v", restored, original)
	}
}

func TestAuditLog_UndoDeleteReinserts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 10))
	c, err := env.categories.Add(ctx, core.Category{Name: "Snacks", Type: core.Expense})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := env.categories.Remove(ctx, c.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	entries := env.logs(t)
	if err := env.audit.Undo(ctx, entries[0].ID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	got, err := env.repos.Categories.GetCategory(ctx, c.ID)
	if err != nil {
		t.Fatalf("category not reinserted: %v", err)
	}
	if got != c {
		t.Errorf("reinserted category = %+v, want %+v", got, c)
	}
}

func TestAuditLog_UndoOnlyTargetsLoggedRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 10))
	b := addBill(t, env, "Power", 5000, core.NewDate(2025, 3, 1))
	res, err := env.bills.PayBill(ctx, b.ID, PayBillInput{AccountID: "bank"})
	if err != nil {
		t.Fatalf("PayBill() error = %v", err)
	}

	entries := env.logs(t)
	if err := env.audit.Undo(ctx, entries[0].ID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	bill, _ := env.bills.Get(ctx, b.ID)
	if bill.Status != core.BillOverdue {
		t.Errorf("bill status after undo = %s, want overdue", bill.Status)
	}
	if _, err := env.repos.Transactions.GetTransaction(ctx, res.Transaction.ID); err != nil {
		t.Errorf("payment transaction should survive undo of the bill update: %v", err)
	}
}

func TestAuditLog_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 10))

	if _, err := env.categories.Add(ctx, core.Category{Name: "A", Type: core.Income}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if env.publisher.count() != 1 {
		t.Fatalf("published %d events, want 1", env.publisher.count())
	}
	msg := env.publisher.msgs[0]
	if msg.EntityType != string(core.EntityCategory) || msg.Action != string(core.ActionCreate) || msg.LogID == "" {
		t.Errorf("event = %+v", msg)
	}

	env.publisher.err = errBoom
	if _, err := env.categories.Add(ctx, core.Category{Name: "B", Type: core.Income}); err != nil {
		t.Fatalf("Add() with failing publisher error = %v", err)
	}
	if got := len(env.logs(t)); got != 2 {
		t.Errorf("audit entries = %d, want 2", got)
	}
}

func TestAuditLog_AppendFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 10))
	env.store.FailOn("AppendLog", errBoom)

	c, err := env.categories.Add(ctx, core.Category{Name: "A", Type: core.Income})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := env.repos.Categories.GetCategory(ctx, c.ID); err != nil {
		t.Errorf("category not stored: %v", err)
	}
}

func TestAuditLog_UndoUnknownEntry(t *testing.T) {
	env := newTestEnv(t, core.NewDate(2025, 3, 10))
	if err := env.audit.Undo(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Undo(missing) error = %v, want ErrNotFound", err)
	}
}
