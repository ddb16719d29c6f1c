// Package memory is an in-process row store implementing every storage port.
// It backs the "memory" data backend and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dues/internal/core"
	"dues/internal/storage"
)

type Store struct {
	mu           sync.Mutex
	members      map[string]core.Member
	leaves       map[string]core.Leave
	payments     map[string]core.Payment
	transactions map[string]core.Transaction
	bills        map[string]core.PayableBill
	categories   map[string]core.Category
	logs         []core.LogEntry
	failures     map[string]error
}

// Ensure interface conformance
var (
	_ storage.MemberRepository      = (*Store)(nil)
	_ storage.LeaveRepository       = (*Store)(nil)
	_ storage.PaymentRepository     = (*Store)(nil)
	_ storage.TransactionRepository = (*Store)(nil)
	_ storage.BillRepository        = (*Store)(nil)
	_ storage.CategoryRepository    = (*Store)(nil)
	_ storage.LogRepository         = (*Store)(nil)
)

func New() *Store {
	return &Store{
		members:      map[string]core.Member{},
		leaves:       map[string]core.Leave{},
		payments:     map[string]core.Payment{},
		transactions: map[string]core.Transaction{},
		bills:        map[string]core.PayableBill{},
		categories:   map[string]core.Category{},
		failures:     map[string]error{},
	}
}

// Repositories exposes the store through every port.
func (s *Store) Repositories() storage.Repositories {
	return storage.Repositories{
		Members:      s,
		Leaves:       s,
		Payments:     s,
		Transactions: s,
		Bills:        s,
		Categories:   s,
		Logs:         s,
	}
}

// FailOn makes the named method (e.g. "UpdateBill") return err until
// cleared with a nil err. Used to exercise revert paths.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

// Members

func (s *Store) ListMembers(_ context.Context, f storage.MemberFilter) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListMembers"); err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]core.Member, 0, len(s.members))
	for _, m := range s.members {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, m.ActivityStatus) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Name), search) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func containsStatus(list []core.ActivityStatus, s core.ActivityStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *Store) GetMember(_ context.Context, id string) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return core.Member{}, notFound("member", id)
	}
	return m, nil
}

func (s *Store) InsertMember(_ context.Context, m core.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertMember"); err != nil {
		return err
	}
	if _, ok := s.members[m.ID]; ok {
		return fmt.Errorf("member %s exists: %w", m.ID, core.ErrConstraint)
	}
	s.members[m.ID] = m
	return nil
}

func (s *Store) UpdateMember(_ context.Context, m core.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateMember"); err != nil {
		return err
	}
	if _, ok := s.members[m.ID]; !ok {
		return notFound("member", m.ID)
	}
	s.members[m.ID] = m
	return nil
}

func (s *Store) DeleteMember(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return notFound("member", id)
	}
	for _, p := range s.payments {
		if p.MemberID == id {
			return fmt.Errorf("member %s has payments: %w", id, core.ErrInUse)
		}
	}
	delete(s.members, id)
	return nil
}

func (s *Store) SetMemberOnLeave(_ context.Context, id string, onLeave bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return notFound("member", id)
	}
	m.OnLeave = onLeave
	s.members[id] = m
	return nil
}

// Leaves

func (s *Store) ListLeavesByMember(_ context.Context, memberID string) ([]core.Leave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListLeavesByMember"); err != nil {
		return nil, err
	}
	var out []core.Leave
	for _, l := range s.leaves {
		if l.MemberID == memberID {
			out = append(out, cloneLeave(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate.Time) })
	return out, nil
}

func (s *Store) GetLeave(_ context.Context, id string) (core.Leave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leaves[id]
	if !ok {
		return core.Leave{}, notFound("leave", id)
	}
	return cloneLeave(l), nil
}

func (s *Store) InsertLeave(_ context.Context, l core.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertLeave"); err != nil {
		return err
	}
	if _, ok := s.members[l.MemberID]; !ok {
		return notFound("member", l.MemberID)
	}
	s.leaves[l.ID] = cloneLeave(l)
	return nil
}

func (s *Store) UpdateLeave(_ context.Context, l core.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leaves[l.ID]; !ok {
		return notFound("leave", l.ID)
	}
	s.leaves[l.ID] = cloneLeave(l)
	return nil
}

func (s *Store) DeleteLeave(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leaves[id]; !ok {
		return notFound("leave", id)
	}
	delete(s.leaves, id)
	return nil
}

// Payments

func (s *Store) ListPaymentsByMember(_ context.Context, memberID string) ([]core.Payment, error) {
	return s.filterPayments("ListPaymentsByMember", func(p core.Payment) bool { return p.MemberID == memberID })
}

func (s *Store) ListPaymentsByTransaction(_ context.Context, transactionID string) ([]core.Payment, error) {
	if transactionID == "" {
		return nil, nil
	}
	return s.filterPayments("ListPaymentsByTransaction", func(p core.Payment) bool { return p.TransactionID == transactionID })
}

func (s *Store) FindPayments(_ context.Context, memberID string, month core.MonthKey) ([]core.Payment, error) {
	return s.filterPayments("FindPayments", func(p core.Payment) bool {
		return p.MemberID == memberID && p.ReferenceMonth == month
	})
}

func (s *Store) filterPayments(method string, keep func(core.Payment) bool) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(method); err != nil {
		return nil, err
	}
	var out []core.Payment
	for _, p := range s.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReferenceMonth == out[j].ReferenceMonth {
			return out[i].ID < out[j].ID
		}
		return out[i].ReferenceMonth < out[j].ReferenceMonth
	})
	return out, nil
}

func (s *Store) GetPayment(_ context.Context, id string) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return core.Payment{}, notFound("payment", id)
	}
	return p, nil
}

func (s *Store) InsertPayment(_ context.Context, p core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertPayment"); err != nil {
		return err
	}
	if _, ok := s.members[p.MemberID]; !ok {
		return notFound("member", p.MemberID)
	}
	s.payments[p.ID] = p
	return nil
}

func (s *Store) UpdatePayment(_ context.Context, p core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdatePayment"); err != nil {
		return err
	}
	if _, ok := s.payments[p.ID]; !ok {
		return notFound("payment", p.ID)
	}
	s.payments[p.ID] = p
	return nil
}

func (s *Store) DeletePayment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[id]; !ok {
		return notFound("payment", id)
	}
	delete(s.payments, id)
	return nil
}

// Transactions

func (s *Store) ListTransactions(_ context.Context, f storage.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListTransactions"); err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, t := range s.transactions {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		if f.UnlinkedOnly && t.PayableBillID != "" {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date.Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.After(out[j].Date.Time)
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, notFound("transaction", id)
	}
	return cloneTransaction(t), nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertTransaction"); err != nil {
		return err
	}
	s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateTransaction"); err != nil {
		return err
	}
	if _, ok := s.transactions[t.ID]; !ok {
		return notFound("transaction", t.ID)
	}
	s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteTransaction"); err != nil {
		return err
	}
	if _, ok := s.transactions[id]; !ok {
		return notFound("transaction", id)
	}
	delete(s.transactions, id)
	return nil
}

// Bills

func (s *Store) ListBills(_ context.Context, f storage.BillFilter) ([]core.PayableBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListBills"); err != nil {
		return nil, err
	}
	var out []core.PayableBill
	for _, b := range s.bills {
		if f.InstallmentGroupID != "" && b.InstallmentGroupID != f.InstallmentGroupID {
			continue
		}
		if f.RecurringID != "" && b.RecurringID != f.RecurringID {
			continue
		}
		if !f.DueFrom.IsZero() && b.DueDate.Before(f.DueFrom.Time) {
			continue
		}
		out = append(out, cloneBill(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate.Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate.Time)
	})
	return out, nil
}

func (s *Store) GetBill(_ context.Context, id string) (core.PayableBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[id]
	if !ok {
		return core.PayableBill{}, notFound("payable bill", id)
	}
	return cloneBill(b), nil
}

func (s *Store) InsertBill(_ context.Context, b core.PayableBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertBill"); err != nil {
		return err
	}
	s.bills[b.ID] = cloneBill(b)
	return nil
}

func (s *Store) UpdateBill(_ context.Context, b core.PayableBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateBill"); err != nil {
		return err
	}
	if _, ok := s.bills[b.ID]; !ok {
		return notFound("payable bill", b.ID)
	}
	s.bills[b.ID] = cloneBill(b)
	return nil
}

func (s *Store) DeleteBill(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteBill"); err != nil {
		return err
	}
	if _, ok := s.bills[id]; !ok {
		return notFound("payable bill", id)
	}
	delete(s.bills, id)
	return nil
}

// Categories

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, notFound("category", id)
	}
	return c, nil
}

func (s *Store) InsertCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		return notFound("category", c.ID)
	}
	s.categories[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return notFound("category", id)
	}
	for _, t := range s.transactions {
		if t.CategoryID == id {
			return fmt.Errorf("category %s referenced by transaction %s: %w", id, t.ID, core.ErrInUse)
		}
	}
	for _, b := range s.bills {
		if b.CategoryID == id {
			return fmt.Errorf("category %s referenced by bill %s: %w", id, b.ID, core.ErrInUse)
		}
	}
	delete(s.categories, id)
	return nil
}

// Logs

func (s *Store) AppendLog(_ context.Context, e core.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AppendLog"); err != nil {
		return err
	}
	s.logs = append(s.logs, e)
	return nil
}

// ListLogs returns the newest entries first.
func (s *Store) ListLogs(_ context.Context, limit int) ([]core.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LogEntry, 0, len(s.logs))
	for i := len(s.logs) - 1; i >= 0; i-- {
		out = append(out, s.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetLog(_ context.Context, id string) (core.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.logs {
		if e.ID == id {
			return e, nil
		}
	}
	return core.LogEntry{}, notFound("log entry", id)
}

func (s *Store) SetLogDescription(_ context.Context, id, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.logs {
		if s.logs[i].ID == id {
			s.logs[i].Description = description
			return nil
		}
	}
	return notFound("log entry", id)
}

func cloneLeave(l core.Leave) core.Leave {
	if l.EndDate != nil {
		end := *l.EndDate
		l.EndDate = &end
	}
	return l
}

func cloneTransaction(t core.Transaction) core.Transaction {
	if t.TagIDs != nil {
		t.TagIDs = append([]string(nil), t.TagIDs...)
	}
	return t
}

func cloneBill(b core.PayableBill) core.PayableBill {
	if b.PaidDate != nil {
		paid := *b.PaidDate
		b.PaidDate = &paid
	}
	if b.InstallmentInfo != nil {
		info := *b.InstallmentInfo
		b.InstallmentInfo = &info
	}
	return b
}
