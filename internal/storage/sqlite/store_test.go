package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dues/internal/core"
	"dues/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "data", "dues.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCategory(t *testing.T, s *Store, id string, typ core.TransactionType) {
	t.Helper()
	if err := s.InsertCategory(context.Background(), core.Category{ID: id, Name: id, Type: typ}); err != nil {
		t.Fatalf("InsertCategory() error = %v", err)
	}
}

func TestNewRunsMigrationsTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dues.db")
	first, err := New(path)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	first.Close()

	second, err := New(path)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	second.Close()
}

func TestMemberRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := core.Member{
		ID:             "m1",
		Name:           "Ana",
		JoinDate:       core.NewDate(2025, 3, 15),
		MonthlyFee:     core.Money{Cents: 5000},
		ActivityStatus: core.Active,
		IsExempt:       true,
	}
	if err := s.InsertMember(ctx, m); err != nil {
		t.Fatalf("InsertMember() error = %v", err)
	}

	got, err := s.GetMember(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if got.Name != "Ana" || !got.JoinDate.Equal(m.JoinDate.Time) || got.MonthlyFee.Cents != 5000 || !got.IsExempt {
		t.Errorf("GetMember() = %+v", got)
	}

	if err := s.SetMemberOnLeave(ctx, "m1", true); err != nil {
		t.Fatalf("SetMemberOnLeave() error = %v", err)
	}
	got, _ = s.GetMember(ctx, "m1")
	if !got.OnLeave {
		t.Error("expected OnLeave after SetMemberOnLeave")
	}

	list, err := s.ListMembers(ctx, storage.MemberFilter{Statuses: []core.ActivityStatus{core.Terminated}})
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListMembers(terminated) returned %d rows", len(list))
	}

	list, _ = s.ListMembers(ctx, storage.MemberFilter{Search: "an"})
	if len(list) != 1 {
		t.Errorf("ListMembers(search) returned %d rows", len(list))
	}
}

func TestGetMissingRowsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetMember(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetMember() error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetBill(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetBill() error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateTransaction(ctx, core.Transaction{ID: "nope", Type: core.Expense}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateTransaction() error = %v, want ErrNotFound", err)
	}
	if err := s.DeletePayment(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeletePayment() error = %v, want ErrNotFound", err)
	}
}

func TestInvalidJoinDateReadsAsZero(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.db.ExecContext(ctx, `INSERT INTO members (id, name, join_date) VALUES ('m1', 'Bad', 'not-a-date')`); err != nil {
		t.Fatalf("raw insert: %v", err)
	}
	got, err := s.GetMember(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if !got.JoinDate.IsZero() {
		t.Errorf("JoinDate = %v, want zero", got.JoinDate)
	}
}

func TestDeleteCategoryInUse(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCategory(t, s, "rent", core.Expense)

	tx := core.Transaction{
		ID: "t1", Description: "Rent", Amount: core.Money{Cents: 100},
		Date: core.NewDate(2025, 1, 5), Type: core.Expense, AccountID: "a1", CategoryID: "rent",
	}
	if err := s.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}

	err := s.DeleteCategory(ctx, "rent")
	if !errors.Is(err, core.ErrInUse) {
		t.Fatalf("DeleteCategory() error = %v, want ErrInUse", err)
	}
	if core.UserMessage(err) == core.UserMessage(errors.New("other")) {
		t.Error("in-use error should have a distinct user message")
	}
}

func TestTransactionTagsAndFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCategory(t, s, "c", core.Expense)

	rows := []core.Transaction{
		{ID: "t1", Description: "A", Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 1),
			Type: core.Expense, AccountID: "a1", CategoryID: "c", TagIDs: []string{"x", "y"}},
		{ID: "t2", Description: "B", Amount: core.Money{Cents: 200}, Date: core.NewDate(2025, 2, 1),
			Type: core.Expense, AccountID: "a1", CategoryID: "c", PayableBillID: "b1"},
		{ID: "t3", Description: "C", Amount: core.Money{Cents: 300}, Date: core.NewDate(2025, 3, 1),
			Type: core.Income, AccountID: "a2", CategoryID: "c"},
	}
	for _, r := range rows {
		if err := s.InsertTransaction(ctx, r); err != nil {
			t.Fatalf("InsertTransaction(%s) error = %v", r.ID, err)
		}
	}

	got, err := s.GetTransaction(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if len(got.TagIDs) != 2 || got.TagIDs[1] != "y" {
		t.Errorf("TagIDs = %v", got.TagIDs)
	}

	unlinked, err := s.ListTransactions(ctx, storage.TransactionFilter{Type: core.Expense, UnlinkedOnly: true})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(unlinked) != 1 || unlinked[0].ID != "t1" {
		t.Errorf("unlinked expenses = %+v", unlinked)
	}

	all, _ := s.ListTransactions(ctx, storage.TransactionFilter{})
	if len(all) != 3 || all[0].ID != "t3" {
		t.Errorf("ListTransactions() should order newest first, got %+v", all)
	}
}

func TestBillRoundTripAndLegacyEstimate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCategory(t, s, "c", core.Expense)

	b := core.PayableBill{
		ID: "b1", Description: "Power", CategoryID: "c", Amount: core.Money{Cents: 9900},
		DueDate: core.NewDate(2025, 4, 10), Status: core.BillPending,
		InstallmentInfo: &core.InstallmentInfo{Current: 2, Total: 3}, InstallmentGroupID: "g1",
	}
	if err := s.InsertBill(ctx, b); err != nil {
		t.Fatalf("InsertBill() error = %v", err)
	}
	got, err := s.GetBill(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBill() error = %v", err)
	}
	if got.InstallmentInfo == nil || got.InstallmentInfo.Current != 2 || got.PaidDate != nil {
		t.Errorf("GetBill() = %+v", got)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE payable_bills SET notes = '[ESTIMATE] approx' WHERE id = 'b1'`); err != nil {
		t.Fatalf("raw update: %v", err)
	}
	got, _ = s.GetBill(ctx, "b1")
	if !got.IsEstimate || got.Notes != "approx" {
		t.Errorf("legacy marker not folded: IsEstimate=%v Notes=%q", got.IsEstimate, got.Notes)
	}

	group, err := s.ListBills(ctx, storage.BillFilter{InstallmentGroupID: "g1", DueFrom: core.NewDate(2025, 4, 10)})
	if err != nil {
		t.Fatalf("ListBills() error = %v", err)
	}
	if len(group) != 1 {
		t.Errorf("ListBills() returned %d rows, want 1", len(group))
	}
}

func TestLogsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []core.LogEntry{
		{ID: "l1", Timestamp: base, Description: "first", EntityType: core.EntityMember, EntityID: "m1",
			Action: core.CreateAction{ID: "m1"}},
		{ID: "l2", Timestamp: base.Add(500 * time.Millisecond), Description: "second", EntityType: core.EntityMember,
			EntityID: "m1", Action: core.UpdateAction{Snapshot: []byte(`{"id":"m1"}`)}},
	}
	for _, e := range entries {
		if err := s.AppendLog(ctx, e); err != nil {
			t.Fatalf("AppendLog() error = %v", err)
		}
	}

	logs, err := s.ListLogs(ctx, 0)
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(logs) != 2 || logs[0].ID != "l2" {
		t.Fatalf("ListLogs() = %+v", logs)
	}
	if _, ok := logs[0].Action.(core.UpdateAction); !ok {
		t.Errorf("Action = %T, want UpdateAction", logs[0].Action)
	}
	if create, ok := logs[1].Action.(core.CreateAction); !ok || create.ID != "m1" {
		t.Errorf("Action = %#v, want CreateAction{m1}", logs[1].Action)
	}

	if err := s.SetLogDescription(ctx, "l1", core.UndoneMarker+"first"); err != nil {
		t.Fatalf("SetLogDescription() error = %v", err)
	}
	e, _ := s.GetLog(ctx, "l1")
	if !e.IsUndone() {
		t.Error("expected entry to be undone")
	}
}
