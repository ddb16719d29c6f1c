package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dues/internal/core"
	"dues/internal/storage"
)

const memberColumns = `id, name, email, phone, join_date, monthly_fee_cents,
	activity_status, is_exempt, on_leave, comments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (core.Member, error) {
	var (
		m        core.Member
		joinDate string
		fee      int64
		status   string
		exempt   int
		onLeave  int
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &joinDate, &fee,
		&status, &exempt, &onLeave, &m.Comments); err != nil {
		return core.Member{}, err
	}
	m.JoinDate = parseDate(joinDate)
	m.MonthlyFee = core.Money{Cents: fee}
	m.ActivityStatus = core.ActivityStatus(status)
	m.IsExempt = exempt != 0
	m.OnLeave = onLeave != 0
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, f storage.MemberFilter) ([]core.Member, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "activity_status IN ("+strings.Join(marks, ", ")+")")
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		where = append(where, "lower(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	query := "SELECT " + memberColumns + " FROM members"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", classify(err, false))
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetMember(ctx context.Context, id string) (core.Member, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE id = ?", id)
	m, err := scanMember(row)
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %s: %w", id, classify(err, false))
	}
	return m, nil
}

func (s *Store) InsertMember(ctx context.Context, m core.Member) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Email, m.Phone, formatDate(m.JoinDate), m.MonthlyFee.Cents,
		string(m.ActivityStatus), boolInt(m.IsExempt), boolInt(m.OnLeave), m.Comments)
	if err != nil {
		return fmt.Errorf("insert member: %w", classify(err, false))
	}
	return nil
}

func (s *Store) UpdateMember(ctx context.Context, m core.Member) error {
	return s.exec(ctx, "update member "+m.ID, false, `UPDATE members SET
		name = ?, email = ?, phone = ?, join_date = ?, monthly_fee_cents = ?,
		activity_status = ?, is_exempt = ?, on_leave = ?, comments = ?
		WHERE id = ?`,
		m.Name, m.Email, m.Phone, formatDate(m.JoinDate), m.MonthlyFee.Cents,
		string(m.ActivityStatus), boolInt(m.IsExempt), boolInt(m.OnLeave), m.Comments, m.ID)
}

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	return s.exec(ctx, "delete member "+id, true, "DELETE FROM members WHERE id = ?", id)
}

func (s *Store) SetMemberOnLeave(ctx context.Context, id string, onLeave bool) error {
	return s.exec(ctx, "set member on leave "+id, false,
		"UPDATE members SET on_leave = ? WHERE id = ?", boolInt(onLeave), id)
}

// Leaves

const leaveColumns = "id, member_id, start_date, end_date, reason"

func scanLeave(row rowScanner) (core.Leave, error) {
	var (
		l          core.Leave
		start, end string
	)
	if err := row.Scan(&l.ID, &l.MemberID, &start, &end, &l.Reason); err != nil {
		return core.Leave{}, err
	}
	l.StartDate = parseDate(start)
	l.EndDate = parseOptDate(end)
	return l, nil
}

func (s *Store) ListLeavesByMember(ctx context.Context, memberID string) ([]core.Leave, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+leaveColumns+" FROM leaves WHERE member_id = ? ORDER BY start_date, id", memberID)
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", classify(err, false))
	}
	defer rows.Close()

	var out []core.Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leave: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) GetLeave(ctx context.Context, id string) (core.Leave, error) {
	l, err := scanLeave(s.db.QueryRowContext(ctx, "SELECT "+leaveColumns+" FROM leaves WHERE id = ?", id))
	if err != nil {
		return core.Leave{}, fmt.Errorf("get leave %s: %w", id, classify(err, false))
	}
	return l, nil
}

func (s *Store) InsertLeave(ctx context.Context, l core.Leave) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO leaves ("+leaveColumns+") VALUES (?, ?, ?, ?, ?)",
		l.ID, l.MemberID, formatDate(l.StartDate), formatOptDate(l.EndDate), l.Reason)
	if err != nil {
		return fmt.Errorf("insert leave: %w", classify(err, false))
	}
	return nil
}

func (s *Store) UpdateLeave(ctx context.Context, l core.Leave) error {
	return s.exec(ctx, "update leave "+l.ID, false,
		"UPDATE leaves SET member_id = ?, start_date = ?, end_date = ?, reason = ? WHERE id = ?",
		l.MemberID, formatDate(l.StartDate), formatOptDate(l.EndDate), l.Reason, l.ID)
}

func (s *Store) DeleteLeave(ctx context.Context, id string) error {
	return s.exec(ctx, "delete leave "+id, true, "DELETE FROM leaves WHERE id = ?", id)
}

// queryRows is shared by the list helpers that scan one entity type.
func queryRows[T any](ctx context.Context, db *sql.DB, what string, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, classify(err, false))
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return out, nil
}
