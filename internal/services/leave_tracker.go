package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dues/internal/core"
	"dues/internal/log"
	"dues/internal/storage"
)

// LeavePatch carries the fields to change on a leave. Nil fields are kept.
type LeavePatch struct {
	StartDate *core.Date
	EndDate   *core.Date
	// Reopen clears the end date, turning the leave back into an open one.
	Reopen bool
	Reason *string
}

// LeaveTracker maintains leave-of-absence intervals per member.
//
// The cached Member.OnLeave flag means "has at least one open leave"; the
// dues engine ignores it and re-reads the intervals.
type LeaveTracker struct {
	leaves  storage.LeaveRepository
	members storage.MemberRepository
	audit   *AuditLog
	clock   core.Clock
	logger  *log.Logger
}

func NewLeaveTracker(repos storage.Repositories, audit *AuditLog, clock core.Clock, logger *log.Logger) *LeaveTracker {
	if logger == nil {
		logger = log.Discard()
	}
	return &LeaveTracker{
		leaves:  repos.Leaves,
		members: repos.Members,
		audit:   audit,
		clock:   clock,
		logger:  logger.WithComponent(log.ComponentLeaves),
	}
}

func (t *LeaveTracker) Add(ctx context.Context, l core.Leave) (core.Leave, error) {
	if err := l.Validate(); err != nil {
		return core.Leave{}, fmt.Errorf("validate leave: %w", err)
	}
	if _, err := t.members.GetMember(ctx, l.MemberID); err != nil {
		return core.Leave{}, fmt.Errorf("get member %s: %w", l.MemberID, err)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if err := t.leaves.InsertLeave(ctx, l); err != nil {
		return core.Leave{}, fmt.Errorf("insert leave: %w", err)
	}
	t.refreshFlag(ctx, l.MemberID)
	t.audit.recordCreate(ctx, core.EntityLeave, l.ID, fmt.Sprintf("Added leave from %s", l.StartDate))
	return l, nil
}

func (t *LeaveTracker) Update(ctx context.Context, id string, patch LeavePatch) (core.Leave, error) {
	before, err := t.leaves.GetLeave(ctx, id)
	if err != nil {
		return core.Leave{}, fmt.Errorf("get leave %s: %w", id, err)
	}

	l := before
	if patch.StartDate != nil {
		l.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		end := *patch.EndDate
		l.EndDate = &end
	}
	if patch.Reopen {
		l.EndDate = nil
	}
	if patch.Reason != nil {
		l.Reason = *patch.Reason
	}
	if err := l.Validate(); err != nil {
		return core.Leave{}, fmt.Errorf("validate leave: %w", err)
	}

	if err := t.leaves.UpdateLeave(ctx, l); err != nil {
		return core.Leave{}, fmt.Errorf("update leave: %w", err)
	}
	t.refreshFlag(ctx, l.MemberID)
	t.audit.recordUpdate(ctx, core.EntityLeave, l.ID, "Updated leave", before)
	return l, nil
}

func (t *LeaveTracker) Remove(ctx context.Context, id string) error {
	before, err := t.leaves.GetLeave(ctx, id)
	if err != nil {
		return fmt.Errorf("get leave %s: %w", id, err)
	}
	if err := t.leaves.DeleteLeave(ctx, id); err != nil {
		return fmt.Errorf("delete leave: %w", err)
	}
	t.refreshFlag(ctx, before.MemberID)
	t.audit.recordDelete(ctx, core.EntityLeave, id, fmt.Sprintf("Removed leave from %s", before.StartDate), before)
	return nil
}

// ListByMember returns the member's leaves. A missing leave table reads as
// no leaves.
func (t *LeaveTracker) ListByMember(ctx context.Context, memberID string) ([]core.Leave, error) {
	leaves, err := t.leaves.ListLeavesByMember(ctx, memberID)
	if errors.Is(err, core.ErrSchemaUnavailable) {
		t.logger.LogSoftFailure(ctx, "Leave storage unavailable, assuming no leaves", err, log.OpList,
			log.LogFields{log.FieldMemberID: memberID})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}
	return leaves, nil
}

func (t *LeaveTracker) IsOnLeave(ctx context.Context, memberID string, date core.Date) (bool, error) {
	leaves, err := t.ListByMember(ctx, memberID)
	if err != nil {
		return false, err
	}
	return onLeaveOn(leaves, date), nil
}

func (t *LeaveTracker) IsCurrentlyOnLeave(ctx context.Context, memberID string) (bool, error) {
	return t.IsOnLeave(ctx, memberID, t.clock.Today())
}

// refreshFlag recomputes the cached flag. The leave row is already written,
// so a failure here is only logged.
func (t *LeaveTracker) refreshFlag(ctx context.Context, memberID string) {
	if err := syncOnLeaveFlag(ctx, t.members, t.leaves, memberID); err != nil {
		t.logger.LogSoftFailure(ctx, "Failed to refresh on-leave flag", err, log.OpUpdate,
			log.LogFields{log.FieldMemberID: memberID})
	}
}

func syncOnLeaveFlag(ctx context.Context, members storage.MemberRepository, leaves storage.LeaveRepository, memberID string) error {
	list, err := leaves.ListLeavesByMember(ctx, memberID)
	if err != nil {
		return fmt.Errorf("list leaves: %w", err)
	}
	open := false
	for _, l := range list {
		if l.IsOpen() {
			open = true
			break
		}
	}
	if err := members.SetMemberOnLeave(ctx, memberID, open); err != nil {
		return fmt.Errorf("set on-leave flag: %w", err)
	}
	return nil
}

// onLeaveOn reports whether any leave interval covers date.
func onLeaveOn(leaves []core.Leave, date core.Date) bool {
	for _, l := range leaves {
		if core.InInterval(date.Time, l.StartDate.Time, endTime(l.EndDate)) {
			return true
		}
	}
	return false
}

func endTime(d *core.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
