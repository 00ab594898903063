package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const householdCols = `id, name, created_at, updated_at`
const memberCols = `id, household_id, user_id, role, joined_at`

func (s *HouseholdStore) Create(ctx context.Context, name string) (*model.Household, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO households (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) Update(ctx context.Context, id int64, name string) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE households SET name = ?, updated_at = datetime('now') WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}

func (s *HouseholdStore) AddMember(ctx context.Context, householdID, userID int64, role string) (*model.Member, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, role) VALUES (?, ?, ?)`,
		householdID, userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM household_members WHERE id = ?`, id)
	return scanMember(row)
}

// RemoveMember deletes a membership and nulls out the user's task
// assignments in that household. Assignments are a weak reference: the
// tasks themselves survive. Removing the household's last owner is a
// domain violation.
func (s *HouseholdStore) RemoveMember(ctx context.Context, householdID, userID int64) error {
	member, err := s.GetMember(ctx, householdID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return fault.NotFound("member", userID)
	}
	if member.Role == model.RoleOwner {
		owners, err := s.countOwners(ctx, householdID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return fault.DomainViolation("household must retain at least one owner")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET assigned_user_id = NULL, version = version + 1, updated_at = datetime('now')
		 WHERE household_id = ? AND assigned_user_id = ?`,
		householdID, userID,
	); err != nil {
		return fmt.Errorf("null assignments: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	return tx.Commit()
}

func (s *HouseholdStore) GetMember(ctx context.Context, householdID, userID int64) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberCols+` FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// IsMember reports whether the user currently belongs to the household.
func (s *HouseholdStore) IsMember(ctx context.Context, householdID, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}

// ListMembers returns the household's members in rotation order:
// joined_at ascending, id as a stable tie-break.
func (s *HouseholdStore) ListMembers(ctx context.Context, householdID int64) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+` FROM household_members WHERE household_id = ? ORDER BY joined_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *HouseholdStore) ListHouseholdsForUser(ctx context.Context, userID int64) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.created_at, h.updated_at
		 FROM households h
		 JOIN household_members hm ON h.id = hm.household_id
		 WHERE hm.user_id = ?
		 ORDER BY h.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	var households []model.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}

func (s *HouseholdStore) UpdateMemberRole(ctx context.Context, householdID, userID int64, role string) (*model.Member, error) {
	member, err := s.GetMember(ctx, householdID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fault.NotFound("member", userID)
	}
	if member.Role == model.RoleOwner && role != model.RoleOwner {
		owners, err := s.countOwners(ctx, householdID)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, fault.DomainViolation("household must retain at least one owner")
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE household_members SET role = ? WHERE household_id = ? AND user_id = ?`,
		role, householdID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	return s.GetMember(ctx, householdID, userID)
}

func (s *HouseholdStore) countOwners(ctx context.Context, householdID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND role = ?`,
		householdID, model.RoleOwner,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return count, nil
}
