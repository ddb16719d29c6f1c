package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dues/internal/core"
)

func TestLeaveTracker_FlagFollowsOpenLeaves(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 4, 10))
	env.seedMember(t, core.Member{ID: "m1", Name: "Ana", JoinDate: core.NewDate(2024, 1, 1)})

	closed, err := env.leaves.Add(ctx, core.Leave{MemberID: "m1", StartDate: core.NewDate(2024, 6, 1), EndDate: core.NewDate(2024, 6, 30).Ptr()})
	if err != nil {
		t.Fatalf("Add(closed) error = %v", err)
	}
	if m, _ := env.repos.Members.GetMember(ctx, "m1"); m.OnLeave {
		t.Error("closed leave should not set OnLeave")
	}

	open, err := env.leaves.Add(ctx, core.Leave{MemberID: "m1", StartDate: core.NewDate(2025, 4, 1)})
	if err != nil {
		t.Fatalf("Add(open) error = %v", err)
	}
	if m, _ := env.repos.Members.GetMember(ctx, "m1"); !m.OnLeave {
		t.Error("open leave should set OnLeave")
	}

	end := core.NewDate(2025, 4, 5)
	if _, err := env.leaves.Update(ctx, open.ID, LeavePatch{EndDate: &end}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if m, _ := env.repos.Members.GetMember(ctx, "m1"); m.OnLeave {
		t.Error("closing the only open leave should clear OnLeave")
	}

	if err := env.leaves.Remove(ctx, closed.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	list, _ := env.leaves.ListByMember(ctx, "m1")
	if len(list) != 1 {
		t.Errorf("ListByMember() returned %d leaves, want 1", len(list))
	}
	if got := len(env.logs(t)); got != 4 {
		t.Errorf("audit entries = %d, want 4", got)
	}
}

func TestLeaveTracker_IsOnLeave(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 31))
	env.seedMember(t, core.Member{ID: "m1", Name: "Ana", JoinDate: core.NewDate(2024, 1, 1)})
	if _, err := env.leaves.Add(ctx, core.Leave{MemberID: "m1", StartDate: core.NewDate(2025, 3, 1), EndDate: core.NewDate(2025, 3, 31).Ptr()}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tests := []struct {
		date core.Date
		want bool
	}{
		{core.NewDate(2025, 2, 28), false},
		{core.NewDate(2025, 3, 1), true},
		{core.NewDate(2025, 3, 31), true},
		{core.NewDate(2025, 4, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.date.String(), func(t *testing.T) {
			got, err := env.leaves.IsOnLeave(ctx, "m1", tt.date)
			if err != nil {
				t.Fatalf("IsOnLeave() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsOnLeave(%s) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}

	now, err := env.leaves.IsCurrentlyOnLeave(ctx, "m1")
	if err != nil || !now {
		t.Errorf("IsCurrentlyOnLeave() = %v, %v; want true, nil", now, err)
	}
}

func TestLeaveTracker_RejectsInvalidLeaves(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 31))
	env.seedMember(t, core.Member{ID: "m1", Name: "Ana", JoinDate: core.NewDate(2024, 1, 1)})

	if _, err := env.leaves.Add(ctx, core.Leave{MemberID: "m1", StartDate: core.NewDate(2025, 3, 10), EndDate: core.NewDate(2025, 3, 1).Ptr()}); err == nil {
		t.Error("expected error for end before start")
	}
	if _, err := env.leaves.Add(ctx, core.Leave{MemberID: "ghost", StartDate: core.NewDate(2025, 3, 1)}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Add(unknown member) error = %v, want ErrNotFound", err)
	}
}

func TestLeaveTracker_MissingSchemaMeansNoLeaves(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 31))
	env.seedMember(t, core.Member{ID: "m1", Name: "Ana", JoinDate: core.NewDate(2025, 3, 1), MonthlyFee: core.Cents(100)})
	env.store.FailOn("ListLeavesByMember", fmt.Errorf("list leaves: %w", core.ErrSchemaUnavailable))

	leaves, err := env.leaves.ListByMember(ctx, "m1")
	if err != nil || len(leaves) != 0 {
		t.Fatalf("ListByMember() = %v, %v; want empty, nil", leaves, err)
	}
	view, err := env.members.GetMemberByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMemberByID() error = %v", err)
	}
	if view.Dues.Status != DuesOverdue {
		t.Errorf("Status = %s, want %s", view.Dues.Status, DuesOverdue)
	}

	env.store.FailOn("ListLeavesByMember", errBoom)
	if _, err := env.leaves.ListByMember(ctx, "m1"); !errors.Is(err, errBoom) {
		t.Errorf("other storage errors should propagate, got %v", err)
	}
}

func TestLeaveTracker_UndoCreateClearsFlag(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, core.NewDate(2025, 3, 31))
	env.seedMember(t, core.Member{ID: "m1", Name: "Ana", JoinDate: core.NewDate(2024, 1, 1)})
	l, err := env.leaves.Add(ctx, core.Leave{MemberID: "m1", StartDate: core.NewDate(2025, 3, 1)})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	entries := env.logs(t)
	if err := env.audit.Undo(ctx, entries[0].ID); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if _, err := env.repos.Leaves.GetLeave(ctx, l.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("leave still present after undo: %v", err)
	}
	if m, _ := env.repos.Members.GetMember(ctx, "m1"); m.OnLeave {
		t.Error("OnLeave should be cleared after undoing the leave")
	}
}
