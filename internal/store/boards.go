package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type BoardRecord struct {
	ID        string
	ProjectID string
	Name      string
	CreatedAt time.Time
}

type Snapshot struct {
	ID        string
	BoardID   string
	ServerSeq int64
	Data      json.RawMessage
	CreatedAt time.Time
}

func (s *Store) CreateBoard(ctx context.Context, b BoardRecord) (BoardRecord, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO boards (id, project_id, name)
		 VALUES ($1, $2, $3)
		 RETURNING id, project_id, name, created_at`,
		b.ID, b.ProjectID, b.Name)
	return scanBoard(row)
}

func (s *Store) GetBoard(ctx context.Context, id string) (BoardRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, name, created_at FROM boards WHERE id = $1`, id)
	return scanBoard(row)
}

func (s *Store) ListBoardsForProject(ctx context.Context, projectID string) ([]BoardRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, name, created_at
		 FROM boards WHERE project_id = $1
		 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var boards []BoardRecord
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (s *Store) RenameBoard(ctx context.Context, id, name string) error {
	_, err := s.pool.Exec(ctx, `UPDATE boards SET name = $2 WHERE id = $1`, id, name)
	return err
}

func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM boards WHERE id = $1`, id)
	return err
}

// SaveSnapshot appends a board snapshot and trims older ones, keeping the
// newest twenty per board.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO board_snapshots (id, board_id, server_seq, data)
		 VALUES ($1, $2, $3, $4)`,
		snap.ID, snap.BoardID, snap.ServerSeq, snap.Data)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`DELETE FROM board_snapshots
		 WHERE board_id = $1 AND id NOT IN (
			SELECT id FROM board_snapshots
			WHERE board_id = $1
			ORDER BY server_seq DESC, created_at DESC
			LIMIT 20
		 )`, snap.BoardID)
	if err != nil {
		return fmt.Errorf("trim snapshots: %w", err)
	}
	return nil
}

func (s *Store) LatestSnapshot(ctx context.Context, boardID string) (Snapshot, error) {
	var snap Snapshot
	row := s.pool.QueryRow(ctx,
		`SELECT id, board_id, server_seq, data, created_at
		 FROM board_snapshots
		 WHERE board_id = $1
		 ORDER BY server_seq DESC, created_at DESC
		 LIMIT 1`, boardID)
	if err := row.Scan(&snap.ID, &snap.BoardID, &snap.ServerSeq, &snap.Data, &snap.CreatedAt); err != nil {
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	return snap, nil
}

// SaveClientState upserts one user's per-board client state, such as their
// viewport.
func (s *Store) SaveClientState(ctx context.Context, userID, boardID string, data json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO client_states (user_id, board_id, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, board_id)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		userID, boardID, data)
	return err
}

func (s *Store) GetClientState(ctx context.Context, userID, boardID string) (json.RawMessage, error) {
	var data json.RawMessage
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM client_states WHERE user_id = $1 AND board_id = $2`,
		userID, boardID)
	if err := row.Scan(&data); err != nil {
		return nil, fmt.Errorf("scan client state: %w", err)
	}
	return data, nil
}

func scanBoard(row rowScanner) (BoardRecord, error) {
	var b BoardRecord
	if err := row.Scan(&b.ID, &b.ProjectID, &b.Name, &b.CreatedAt); err != nil {
		return BoardRecord{}, fmt.Errorf("scan board: %w", err)
	}
	return b, nil
}
