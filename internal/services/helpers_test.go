package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dues/internal/amqp"
	"dues/internal/blob"
	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/storage"
	"dues/internal/storage/memory"
)

type testEnv struct {
	store      *memory.Store
	repos      storage.Repositories
	audit      *AuditLog
	publisher  *fakePublisher
	blobs      *fakeBlobStore
	leaves     *LeaveTracker
	bills      *BillService
	ledger     *LedgerService
	members    *MemberService
	categories *CategoryService
}

func newTestEnv(t *testing.T, today core.Date) *testEnv {
	t.Helper()
	store := memory.New()
	return newTestEnvWith(t, store, store.Repositories(), today)
}

func newTestEnvWith(t *testing.T, store *memory.Store, repos storage.Repositories, today core.Date) *testEnv {
	t.Helper()
	logger := log.Discard()
	clock := core.FixedClock{Day: today}
	env := &testEnv{
		store:     store,
		repos:     repos,
		publisher: &fakePublisher{},
		blobs:     &fakeBlobStore{},
	}
	env.audit = NewAuditLog(repos, env.publisher, logger)
	env.leaves = NewLeaveTracker(repos, env.audit, clock, logger)
	env.bills = NewBillService(repos, env.audit, env.blobs, clock, DefaultBillServiceConfig(), logger)
	env.ledger = NewLedgerService(repos, env.bills, env.audit, env.blobs, clock, logger)
	env.members = NewMemberService(repos, env.leaves, env.audit, env.blobs, clock, DefaultMemberServiceConfig(), logger)
	env.categories = NewCategoryService(repos, env.audit, logger)

	ctx := context.Background()
	for _, c := range []core.Category{
		{ID: "fees", Name: "Fees", Type: core.Income},
		{ID: "utilities", Name: "Utilities", Type: core.Expense},
	} {
		if err := repos.Categories.InsertCategory(ctx, c); err != nil {
			t.Fatalf("seed category: %v", err)
		}
	}
	return env
}

func (e *testEnv) seedMember(t *testing.T, m core.Member) core.Member {
	t.Helper()
	if m.ActivityStatus == "" {
		m.ActivityStatus = core.Active
	}
	if err := e.repos.Members.InsertMember(context.Background(), m); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return m
}

func (e *testEnv) seedTransaction(t *testing.T, tx core.Transaction) core.Transaction {
	t.Helper()
	if tx.AccountID == "" {
		tx.AccountID = "bank"
	}
	if tx.CategoryID == "" {
		tx.CategoryID = "utilities"
	}
	if tx.Type == "" {
		tx.Type = core.Expense
	}
	if err := e.repos.Transactions.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return tx
}

func (e *testEnv) logs(t *testing.T) []core.LogEntry {
	t.Helper()
	entries, err := e.audit.GetLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	return entries
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.LedgerEventMessage
	err  error
}

func (p *fakePublisher) PublishLedgerEvent(_ context.Context, msg *amqp.LedgerEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type fakeBlobStore struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (s *fakeBlobStore) Put(_ context.Context, name string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, name)
	return "https://files.example/" + name, nil
}

var _ blob.Store = (*fakeBlobStore)(nil)

var errBoom = errors.New("boom")

// flakyBills fails the failAt-th InsertBill call.
type flakyBills struct {
	storage.BillRepository
	failAt int
	calls  int
}

func (f *flakyBills) InsertBill(ctx context.Context, b core.PayableBill) error {
	f.calls++
	if f.calls == f.failAt {
		return errBoom
	}
	return f.BillRepository.InsertBill(ctx, b)
}

// memberPayments fails ListPaymentsByMember for one member only.
type memberPayments struct {
	storage.PaymentRepository
	failFor string
}

func (p memberPayments) ListPaymentsByMember(ctx context.Context, memberID string) ([]core.Payment, error) {
	if memberID == p.failFor {
		return nil, errBoom
	}
	return p.PaymentRepository.ListPaymentsByMember(ctx, memberID)
}
