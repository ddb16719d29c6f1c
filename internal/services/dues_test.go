package services

import (
	"reflect"
	"testing"

	"dues/internal/core"
	"dues/internal/log"
)

func monthsOf(d Dues) []core.MonthKey {
	out := make([]core.MonthKey, 0, len(d.OverdueMonths))
	for _, o := range d.OverdueMonths {
		out = append(out, o.Month)
	}
	return out
}

func TestComputeDues_LeaveAndPaymentScenario(t *testing.T) {
	m := core.Member{ID: "m1", JoinDate: core.NewDate(2024, 1, 1), MonthlyFee: core.Cents(5000), ActivityStatus: core.Active}
	leaves := []core.Leave{{StartDate: core.NewDate(2024, 3, 1), EndDate: core.NewDate(2024, 3, 31).Ptr()}}
	payments := []core.Payment{{ReferenceMonth: "2024-02", Amount: core.Cents(5000)}}

	d := ComputeDues(m, payments, leaves, core.NewDate(2024, 4, 1), log.Discard())

	want := []core.MonthKey{"2024-01", "2024-04"}
	if got := monthsOf(d); !reflect.DeepEqual(got, want) {
		t.Errorf("OverdueMonths = %v, want %v", got, want)
	}
	if d.TotalDue.Cents != 10000 {
		t.Errorf("TotalDue = %s, want 100.00", d.TotalDue)
	}
	if d.Status != DuesOverdue {
		t.Errorf("Status = %s, want %s", d.Status, DuesOverdue)
	}
}

func TestComputeDues_UnpaidMonthsSinceJoin(t *testing.T) {
	today := core.NewDate(2025, 6, 20)
	tests := []struct {
		name string
		join core.Date
		n    int
	}{
		{"joined this month", core.NewDate(2025, 6, 19), 0},
		{"joined last month", core.NewDate(2025, 5, 31), 1},
		{"joined mid last year", core.NewDate(2024, 7, 15), 11},
		{"joined three years ago", core.NewDate(2022, 6, 1), 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := core.Member{JoinDate: tt.join, MonthlyFee: core.Cents(2500), ActivityStatus: core.Active}
			d := ComputeDues(m, nil, nil, today, nil)
			if len(d.OverdueMonths) != tt.n+1 {
				t.Errorf("len(OverdueMonths) = %d, want %d", len(d.OverdueMonths), tt.n+1)
			}
			if d.TotalDue.Cents != int64(tt.n+1)*2500 {
				t.Errorf("TotalDue = %d cents, want %d", d.TotalDue.Cents, int64(tt.n+1)*2500)
			}
		})
	}
}

func TestComputeDues_LeaveMonthsNeverOverdue(t *testing.T) {
	m := core.Member{JoinDate: core.NewDate(2024, 1, 10), MonthlyFee: core.Cents(1000), ActivityStatus: core.Active}
	leaves := []core.Leave{
		// Overlaps May and June by one day each.
		{StartDate: core.NewDate(2024, 5, 31), EndDate: core.NewDate(2024, 6, 1).Ptr()},
		{StartDate: core.NewDate(2024, 9, 15), EndDate: core.NewDate(2024, 9, 15).Ptr()},
	}
	payments := []core.Payment{{ReferenceMonth: "2024-05"}}

	d := ComputeDues(m, payments, leaves, core.NewDate(2024, 10, 5), nil)

	for _, month := range monthsOf(d) {
		switch month {
		case "2024-05", "2024-06", "2024-09":
			t.Errorf("leave month %s reported overdue", month)
		}
	}
	if len(d.OverdueMonths) != 7 {
		t.Errorf("len(OverdueMonths) = %d, want 7 (%v)", len(d.OverdueMonths), monthsOf(d))
	}
}

func TestComputeDues_Status(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	join := core.NewDate(2025, 1, 1)
	paidThrough := func(months ...core.MonthKey) []core.Payment {
		var out []core.Payment
		for _, m := range months {
			out = append(out, core.Payment{ReferenceMonth: m})
		}
		return out
	}

	tests := []struct {
		name       string
		member     core.Member
		payments   []core.Payment
		leaves     []core.Leave
		wantStatus DuesStatus
		wantMonths []core.MonthKey
	}{
		{
			name:       "on time",
			member:     core.Member{JoinDate: join, ActivityStatus: core.Active},
			payments:   paidThrough("2025-01", "2025-02", "2025-03"),
			wantStatus: DuesOnTime,
		},
		{
			name:       "paid ahead",
			member:     core.Member{JoinDate: join, ActivityStatus: core.Active},
			payments:   paidThrough("2025-01", "2025-02", "2025-03", "2025-04"),
			wantStatus: DuesAdvance,
		},
		{
			name:       "overdue",
			member:     core.Member{JoinDate: join, ActivityStatus: core.Inactive},
			payments:   paidThrough("2025-01"),
			wantStatus: DuesOverdue,
			wantMonths: []core.MonthKey{"2025-02", "2025-03"},
		},
		{
			name:       "exempt",
			member:     core.Member{JoinDate: join, ActivityStatus: core.Active, IsExempt: true},
			wantStatus: DuesExempt,
		},
		{
			name:       "on leave today short-circuits",
			member:     core.Member{JoinDate: join, ActivityStatus: core.Terminated, IsExempt: true},
			leaves:     []core.Leave{{StartDate: core.NewDate(2025, 3, 1)}},
			wantStatus: DuesOnLeave,
		},
		{
			name:       "terminated stops before current month",
			member:     core.Member{JoinDate: join, ActivityStatus: core.Terminated},
			payments:   paidThrough("2025-01"),
			wantStatus: DuesTerminated,
			wantMonths: []core.MonthKey{"2025-02"},
		},
		{
			name:       "archived keeps historical debt",
			member:     core.Member{JoinDate: join, ActivityStatus: core.Archived},
			wantStatus: DuesArchived,
			wantMonths: []core.MonthKey{"2025-01", "2025-02"},
		},
		{
			name:       "invalid join date",
			member:     core.Member{ActivityStatus: core.Active},
			wantStatus: DuesOnTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.member.MonthlyFee = core.Cents(3000)
			d := ComputeDues(tt.member, tt.payments, tt.leaves, today, log.Discard())
			if d.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", d.Status, tt.wantStatus)
			}
			if got := monthsOf(d); len(got) != len(tt.wantMonths) || (len(got) > 0 && !reflect.DeepEqual(got, tt.wantMonths)) {
				t.Errorf("OverdueMonths = %v, want %v", got, tt.wantMonths)
			}
		})
	}
}

func TestComputeDues_Deterministic(t *testing.T) {
	m := core.Member{JoinDate: core.NewDate(2023, 11, 30), MonthlyFee: core.Cents(1234), ActivityStatus: core.Active}
	payments := []core.Payment{{ReferenceMonth: "2024-01"}, {ReferenceMonth: "2023-12"}}
	today := core.NewDate(2024, 2, 29)

	first := ComputeDues(m, payments, nil, today, nil)
	second := ComputeDues(m, payments, nil, today, nil)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("ComputeDues not deterministic: %+v vs %+v", first, second)
	}
}
