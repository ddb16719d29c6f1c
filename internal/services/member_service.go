package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"dues/internal/blob"
	"dues/internal/cache"
	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/storage"
)

type (
	// MemberView is a member with dues computed as of today.
	MemberView struct {
		core.Member
		Dues Dues `json:"dues"`
	}

	NewMemberInput struct {
		Name           string `validate:"required,max=100"`
		Email          string `validate:"omitempty,email"`
		Phone          string `validate:"max=40"`
		JoinDate       core.Date
		MonthlyFee     core.Money
		ActivityStatus core.ActivityStatus `validate:"omitempty,activity"`
		IsExempt       bool
		Comments       string
	}

	// IncomePaymentInput records a member payment together with the income
	// transaction that funds it.
	IncomePaymentInput struct {
		MemberID       string        `validate:"required"`
		ReferenceMonth core.MonthKey `validate:"required,monthkey"`
		Amount         core.Money
		PaymentDate    core.Date
		AccountID      string `validate:"required"`
		CategoryID     string `validate:"required"`
		Description    string `validate:"max=200"`
		Comments       string
		Attachment     *blob.Attachment
	}

	PaymentRecord struct {
		Payment     core.Payment
		Transaction core.Transaction
		Warning     string
	}

	MemberDue struct {
		MemberID string     `json:"member_id"`
		Name     string     `json:"name"`
		Months   int        `json:"months"`
		TotalDue core.Money `json:"total_due"`
	}

	// DuesSummary aggregates dues over every member.
	DuesSummary struct {
		Today            core.Date          `json:"today"`
		Members          int                `json:"members"`
		ByStatus         map[DuesStatus]int `json:"by_status"`
		TotalOutstanding core.Money         `json:"total_outstanding"`
		// Debtors is sorted by amount due, largest first.
		Debtors []MemberDue `json:"debtors"`
	}

	MemberServiceConfig struct {
		CacheSize int
		CacheTTL  time.Duration
		// Concurrency bounds the per-member dues fetches of GetMembers.
		Concurrency int
	}
)

func DefaultMemberServiceConfig() MemberServiceConfig {
	return MemberServiceConfig{
		CacheSize:   500,
		CacheTTL:    5 * time.Minute,
		Concurrency: 8,
	}
}

// MemberService exposes members with their dues and records member payments.
//
// Computed dues are cached per member and day. Every audited mutation purges
// the cache, since a payment, leave or fee change can move any member.
type MemberService struct {
	members  storage.MemberRepository
	payments storage.PaymentRepository
	txns     storage.TransactionRepository
	leaves   *LeaveTracker
	audit    *AuditLog
	clock    core.Clock
	uploader uploader
	config   MemberServiceConfig
	logger   *log.Logger

	dues  *cache.LRUCache[Dues]
	group singleflight.Group
	// duesMu orders purges against cache fills; duesGen counts purges.
	duesMu  sync.Mutex
	duesGen uint64
}

func NewMemberService(repos storage.Repositories, leaves *LeaveTracker, audit *AuditLog, store blob.Store, clock core.Clock, config MemberServiceConfig, logger *log.Logger) *MemberService {
	if logger == nil {
		logger = log.Discard()
	}
	def := DefaultMemberServiceConfig()
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	logger = logger.WithComponent(log.ComponentMembers)
	s := &MemberService{
		members:  repos.Members,
		payments: repos.Payments,
		txns:     repos.Transactions,
		leaves:   leaves,
		audit:    audit,
		clock:    clock,
		uploader: uploader{store: store, folder: "payments", logger: logger},
		config:   config,
		logger:   logger,
		dues:     cache.NewLRUCache[Dues](config.CacheSize, config.CacheTTL),
	}
	if audit != nil {
		audit.OnChange(func(core.LogEntry) { s.purgeDues() })
	}
	return s
}

func (s *MemberService) purgeDues() {
	s.duesMu.Lock()
	defer s.duesMu.Unlock()
	s.duesGen++
	s.dues.Purge()
}

func (s *MemberService) duesGeneration() uint64 {
	s.duesMu.Lock()
	defer s.duesMu.Unlock()
	return s.duesGen
}

// cacheDues stores d unless a purge happened since gen was read, in which
// case d may predate the write that caused the purge.
func (s *MemberService) cacheDues(key string, d Dues, gen uint64) {
	s.duesMu.Lock()
	defer s.duesMu.Unlock()
	if s.duesGen == gen {
		s.dues.Set(key, d)
	}
}

// DuesCache exposes the dues cache so a cache.Manager can sweep it.
func (s *MemberService) DuesCache() cache.Cleaner {
	return s.dues
}

// GetMembers lists members matching f with their dues. A member whose dues
// cannot be computed is returned with DuesUnknown instead of failing the
// list. Concurrent calls with the same filter share one computation.
func (s *MemberService) GetMembers(ctx context.Context, f storage.MemberFilter) ([]MemberView, error) {
	today := s.clock.Today()
	gen := s.duesGeneration()
	key := fmt.Sprintf("%s|%s|%d", filterKey(f), today, gen)
	loadCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.loadMembers(loadCtx, f, today, gen)
	})
	if err != nil {
		return nil, err
	}
	views := v.([]MemberView)
	if shared {
		views = append([]MemberView(nil), views...)
	}
	return views, nil
}

func (s *MemberService) loadMembers(ctx context.Context, f storage.MemberFilter, today core.Date, gen uint64) ([]MemberView, error) {
	start := time.Now()
	members, err := s.members.ListMembers(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	views := make([]MemberView, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, m := range members {
		g.Go(func() error {
			views[i] = MemberView{Member: m, Dues: s.duesFor(gctx, m, today, gen)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Members loaded",
		log.FieldCount, len(views),
		log.FieldDuration, time.Since(start).Milliseconds())
	return views, nil
}

// duesFor never fails; a member it cannot evaluate gets DuesUnknown.
// gen is the purge generation read before m was loaded.
func (s *MemberService) duesFor(ctx context.Context, m core.Member, today core.Date, gen uint64) Dues {
	key := m.ID + "|" + today.String()
	if d, ok := s.dues.Get(key); ok {
		return d
	}

	payments, err := s.payments.ListPaymentsByMember(ctx, m.ID)
	if err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to load payments, dues unknown", err, log.OpRead,
			log.LogFields{log.FieldMemberID: m.ID})
		return Dues{Status: DuesUnknown}
	}
	leaves, err := s.leaves.ListByMember(ctx, m.ID)
	if err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to load leaves, dues unknown", err, log.OpRead,
			log.LogFields{log.FieldMemberID: m.ID})
		return Dues{Status: DuesUnknown}
	}

	d := ComputeDues(m, payments, leaves, today, s.logger)
	s.cacheDues(key, d, gen)
	return d
}

func (s *MemberService) GetMemberByID(ctx context.Context, id string) (MemberView, error) {
	gen := s.duesGeneration()
	m, err := s.members.GetMember(ctx, id)
	if err != nil {
		return MemberView{}, fmt.Errorf("get member %s: %w", id, err)
	}
	return MemberView{Member: m, Dues: s.duesFor(ctx, m, s.clock.Today(), gen)}, nil
}

func (s *MemberService) AddMember(ctx context.Context, in NewMemberInput) (core.Member, error) {
	if err := core.ValidateStruct(in); err != nil {
		return core.Member{}, err
	}
	if err := in.JoinDate.Validate(); err != nil {
		return core.Member{}, fmt.Errorf("invalid join date: %w", err)
	}
	status := in.ActivityStatus
	if status == "" {
		status = core.Active
	}
	m := core.Member{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Email:          in.Email,
		Phone:          in.Phone,
		JoinDate:       in.JoinDate,
		MonthlyFee:     in.MonthlyFee,
		ActivityStatus: status,
		IsExempt:       in.IsExempt,
		Comments:       in.Comments,
	}
	if err := m.Validate(); err != nil {
		return core.Member{}, fmt.Errorf("validate member: %w", err)
	}
	if err := s.members.InsertMember(ctx, m); err != nil {
		return core.Member{}, fmt.Errorf("insert member: %w", err)
	}
	s.audit.recordCreate(ctx, core.EntityMember, m.ID, fmt.Sprintf("Added member %s", m.Name))
	return m, nil
}

// UpdateMember overwrites a member. OnLeave is owned by the leave tracker
// and keeps its stored value.
func (s *MemberService) UpdateMember(ctx context.Context, m core.Member) (core.Member, error) {
	before, err := s.members.GetMember(ctx, m.ID)
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %s: %w", m.ID, err)
	}
	m.OnLeave = before.OnLeave
	if err := m.Validate(); err != nil {
		return core.Member{}, fmt.Errorf("validate member: %w", err)
	}
	if err := s.members.UpdateMember(ctx, m); err != nil {
		return core.Member{}, fmt.Errorf("update member: %w", err)
	}
	s.audit.recordUpdate(ctx, core.EntityMember, m.ID, fmt.Sprintf("Updated member %s", m.Name), before)
	return m, nil
}

func (s *MemberService) GetPaymentsByMember(ctx context.Context, memberID string) ([]core.Payment, error) {
	payments, err := s.payments.ListPaymentsByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// AddIncomeTransactionAndPayment records an income transaction and the
// payment it funds. If the payment cannot be stored the transaction is
// deleted again.
func (s *MemberService) AddIncomeTransactionAndPayment(ctx context.Context, in IncomePaymentInput) (PaymentRecord, error) {
	if err := core.ValidateStruct(in); err != nil {
		return PaymentRecord{}, err
	}
	if err := in.Amount.Validate(); err != nil {
		return PaymentRecord{}, err
	}
	m, err := s.members.GetMember(ctx, in.MemberID)
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("get member %s: %w", in.MemberID, err)
	}
	date := in.PaymentDate
	if date.IsZero() {
		date = s.clock.Today()
	}
	description := in.Description
	if strings.TrimSpace(description) == "" {
		description = fmt.Sprintf("Membership fee %s %s", m.Name, in.ReferenceMonth)
	}

	var rec PaymentRecord
	url, warning := s.uploader.upload(ctx, in.Attachment)
	rec.Warning = warning

	t := core.Transaction{
		ID:            uuid.NewString(),
		Description:   description,
		Amount:        in.Amount,
		Date:          date,
		Type:          core.Income,
		AccountID:     in.AccountID,
		CategoryID:    in.CategoryID,
		Comments:      in.Comments,
		AttachmentURL: url,
	}
	if err := t.Validate(); err != nil {
		return PaymentRecord{}, fmt.Errorf("validate transaction: %w", err)
	}
	p := core.Payment{
		ID:             uuid.NewString(),
		MemberID:       m.ID,
		Amount:         in.Amount,
		PaymentDate:    date,
		ReferenceMonth: in.ReferenceMonth,
		TransactionID:  t.ID,
		AttachmentURL:  url,
		Comments:       in.Comments,
	}
	if err := p.Validate(); err != nil {
		return PaymentRecord{}, fmt.Errorf("validate payment: %w", err)
	}

	if err := s.txns.InsertTransaction(ctx, t); err != nil {
		return PaymentRecord{}, fmt.Errorf("insert transaction: %w", err)
	}
	if err := s.payments.InsertPayment(ctx, p); err != nil {
		if derr := s.txns.DeleteTransaction(ctx, t.ID); derr != nil {
			s.logger.LogSoftFailure(ctx, "Failed to revert income transaction", derr, log.OpRevert,
				log.LogFields{log.FieldTransactionID: t.ID})
		}
		return PaymentRecord{}, fmt.Errorf("insert payment: %w", err)
	}

	s.audit.recordCreate(ctx, core.EntityPayment, p.ID, fmt.Sprintf("Added payment of %s for %s (%s)", m.Name, p.ReferenceMonth, p.Amount))
	s.logger.InfoContext(ctx, "Payment recorded",
		log.FieldMemberID, m.ID,
		log.FieldPaymentID, p.ID,
		log.FieldMonth, string(p.ReferenceMonth),
		log.FieldAmountCents, p.Amount.Cents)
	rec.Payment = p
	rec.Transaction = t
	return rec, nil
}

// UpdatePaymentAndTransaction overwrites a payment. When the payment is the
// only one its transaction funds, the transaction follows its amount, date
// and attachment; a lump transaction funding several payments is left alone.
func (s *MemberService) UpdatePaymentAndTransaction(ctx context.Context, p core.Payment, attachment *blob.Attachment) (PaymentRecord, error) {
	before, err := s.payments.GetPayment(ctx, p.ID)
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("get payment %s: %w", p.ID, err)
	}
	p.TransactionID = before.TransactionID

	var rec PaymentRecord
	if url, warning := s.uploader.upload(ctx, attachment); url != "" {
		p.AttachmentURL = url
	} else {
		rec.Warning = warning
	}
	if err := p.Validate(); err != nil {
		return PaymentRecord{}, fmt.Errorf("validate payment: %w", err)
	}
	if err := s.payments.UpdatePayment(ctx, p); err != nil {
		return PaymentRecord{}, fmt.Errorf("update payment: %w", err)
	}

	if !p.IsHistorical() {
		t, err := s.followPayment(ctx, p)
		if err != nil {
			if rerr := s.payments.UpdatePayment(ctx, before); rerr != nil {
				s.logger.LogSoftFailure(ctx, "Failed to restore payment", rerr, log.OpRevert,
					log.LogFields{log.FieldPaymentID: p.ID})
			}
			return PaymentRecord{}, err
		}
		rec.Transaction = t
	}

	s.audit.recordUpdate(ctx, core.EntityPayment, p.ID, fmt.Sprintf("Updated payment for %s", p.ReferenceMonth), before)
	rec.Payment = p
	return rec, nil
}

func (s *MemberService) followPayment(ctx context.Context, p core.Payment) (core.Transaction, error) {
	t, err := s.txns.GetTransaction(ctx, p.TransactionID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", p.TransactionID, err)
	}
	funded, err := s.payments.ListPaymentsByTransaction(ctx, t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("list payments of transaction %s: %w", t.ID, err)
	}
	if len(funded) != 1 {
		return t, nil
	}
	t.Amount = p.Amount
	if !p.PaymentDate.IsZero() {
		t.Date = p.PaymentDate
	}
	if p.AttachmentURL != "" {
		t.AttachmentURL = p.AttachmentURL
	}
	if err := s.txns.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return t, nil
}

// DeletePayment removes a payment, and its transaction once no other
// payment refers to it.
func (s *MemberService) DeletePayment(ctx context.Context, id string) error {
	before, err := s.payments.GetPayment(ctx, id)
	if err != nil {
		return fmt.Errorf("get payment %s: %w", id, err)
	}
	if err := s.payments.DeletePayment(ctx, id); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if !before.IsHistorical() {
		s.dropOrphanTransaction(ctx, before.TransactionID)
	}
	s.audit.recordDelete(ctx, core.EntityPayment, id, fmt.Sprintf("Removed payment for %s", before.ReferenceMonth), before)
	return nil
}

func (s *MemberService) dropOrphanTransaction(ctx context.Context, transactionID string) {
	rest, err := s.payments.ListPaymentsByTransaction(ctx, transactionID)
	if err == nil && len(rest) > 0 {
		return
	}
	if err == nil {
		err = s.txns.DeleteTransaction(ctx, transactionID)
		if errors.Is(err, core.ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		s.logger.LogSoftFailure(ctx, "Failed to delete transaction of removed payment", err, log.OpDelete,
			log.LogFields{log.FieldTransactionID: transactionID})
	}
}

// DuesSummary aggregates the dues of every member as of today.
func (s *MemberService) DuesSummary(ctx context.Context) (DuesSummary, error) {
	views, err := s.GetMembers(ctx, storage.MemberFilter{})
	if err != nil {
		return DuesSummary{}, err
	}
	sum := DuesSummary{
		Today:    s.clock.Today(),
		Members:  len(views),
		ByStatus: map[DuesStatus]int{},
	}
	for _, v := range views {
		sum.ByStatus[v.Dues.Status]++
		if v.Dues.TotalDue.IsZero() {
			continue
		}
		sum.TotalOutstanding = sum.TotalOutstanding.Add(v.Dues.TotalDue)
		sum.Debtors = append(sum.Debtors, MemberDue{
			MemberID: v.ID,
			Name:     v.Name,
			Months:   len(v.Dues.OverdueMonths),
			TotalDue: v.Dues.TotalDue,
		})
	}
	sort.Slice(sum.Debtors, func(i, j int) bool {
		if sum.Debtors[i].TotalDue.Cents == sum.Debtors[j].TotalDue.Cents {
			return sum.Debtors[i].Name < sum.Debtors[j].Name
		}
		return sum.Debtors[i].TotalDue.Cents > sum.Debtors[j].TotalDue.Cents
	})
	return sum, nil
}

func filterKey(f storage.MemberFilter) string {
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	sort.Strings(statuses)
	return strings.Join(statuses, ",") + "|" + strings.ToLower(f.Search)
}
