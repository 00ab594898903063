package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/fairshare/internal/model"
)

type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(db *sql.DB) *RoomStore {
	return &RoomStore{db: db}
}

const roomCols = `id, household_id, name, sort_order, created_at, updated_at`

func scanRoom(scanner interface{ Scan(...any) error }) (*model.Room, error) {
	var r model.Room
	err := scanner.Scan(&r.ID, &r.HouseholdID, &r.Name, &r.SortOrder, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RoomStore) Create(ctx context.Context, householdID int64, name string, sortOrder int) (*model.Room, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (household_id, name, sort_order) VALUES (?, ?, ?)`,
		householdID, name, sortOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RoomStore) GetByID(ctx context.Context, id int64) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomCols+` FROM rooms WHERE id = ?`, id)
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return r, nil
}

func (s *RoomStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomCols+` FROM rooms WHERE household_id = ? ORDER BY sort_order ASC, name ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

func (s *RoomStore) Update(ctx context.Context, id int64, name string, sortOrder int) (*model.Room, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET name = ?, sort_order = ?, updated_at = datetime('now') WHERE id = ?`,
		name, sortOrder, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RoomStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
