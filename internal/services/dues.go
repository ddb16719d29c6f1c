package services

import (
	"dues/internal/core"
	"dues/internal/log"
)

// DuesStatus is the headline state of a member's dues.
type DuesStatus string

const (
	DuesOnTime     DuesStatus = "on_time"
	DuesOverdue    DuesStatus = "overdue"
	DuesAdvance    DuesStatus = "advance"
	DuesOnLeave    DuesStatus = "on_leave"
	DuesExempt     DuesStatus = "exempt"
	DuesTerminated DuesStatus = "terminated"
	DuesArchived   DuesStatus = "archived"
	// DuesUnknown marks a member whose dues could not be computed.
	DuesUnknown DuesStatus = "unknown"
)

type (
	OverdueMonth struct {
		Month  core.MonthKey `json:"month"`
		Amount core.Money    `json:"amount"`
	}

	Dues struct {
		Status        DuesStatus     `json:"status"`
		OverdueMonths []OverdueMonth `json:"overdue_months"`
		TotalDue      core.Money     `json:"total_due"`
	}
)

// ComputeDues derives a member's dues from the given rows. It reads no
// storage and depends only on its arguments, so the same inputs always
// give the same result.
//
// Terminated and archived members stop accruing before the current month;
// everyone else owes the current month too. Their reported status is forced
// to the terminal one, but historical debt is still listed.
func ComputeDues(m core.Member, payments []core.Payment, leaves []core.Leave, today core.Date, logger *log.Logger) Dues {
	if onLeaveOn(leaves, today) {
		return Dues{Status: DuesOnLeave}
	}
	if m.IsExempt {
		return Dues{Status: DuesExempt}
	}

	paid := make(map[core.MonthKey]struct{}, len(payments))
	var latestPaid core.MonthKey
	for _, p := range payments {
		paid[p.ReferenceMonth] = struct{}{}
		if p.ReferenceMonth > latestPaid {
			latestPaid = p.ReferenceMonth
		}
	}

	current := core.MonthKeyOf(today.Time)
	terminal := m.ActivityStatus.IsTerminal()

	var overdue []OverdueMonth
	if m.JoinDate.IsZero() {
		if logger != nil {
			logger.Warn("Invalid join date, treating member as having no overdue months",
				log.FieldMemberID, m.ID)
		}
	} else {
		last := current
		if terminal {
			last = core.MonthKeyOf(core.AddMonthsUTC(current.Start().Time, -1))
		}
		for _, month := range core.MonthsBetween(core.MonthKeyOf(core.FirstOfMonthUTC(m.JoinDate.Time)), last) {
			if _, ok := paid[month]; ok {
				continue
			}
			if leaveCovers(leaves, month) {
				continue
			}
			overdue = append(overdue, OverdueMonth{Month: month, Amount: m.MonthlyFee})
		}
	}

	d := Dues{OverdueMonths: overdue}
	for _, o := range overdue {
		d.TotalDue = d.TotalDue.Add(o.Amount)
	}

	switch {
	case m.ActivityStatus == core.Terminated:
		d.Status = DuesTerminated
	case m.ActivityStatus == core.Archived:
		d.Status = DuesArchived
	case len(overdue) > 0:
		d.Status = DuesOverdue
	case latestPaid > current:
		d.Status = DuesAdvance
	default:
		d.Status = DuesOnTime
	}
	return d
}

// leaveCovers reports whether any leave overlaps any day of month.
func leaveCovers(leaves []core.Leave, month core.MonthKey) bool {
	for _, l := range leaves {
		if core.OverlapsMonth(month, l.StartDate, l.EndDate) {
			return true
		}
	}
	return false
}
