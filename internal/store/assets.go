package store

import (
	"context"
	"fmt"
	"time"
)

type Asset struct {
	ID         string
	ProjectID  string
	UploaderID string
	Kind       string
	MimeType   string
	SizeBytes  int64
	Path       string
	CreatedAt  time.Time
}

func (s *Store) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO assets (id, project_id, uploader_id, kind, mime_type, size_bytes, path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, project_id, uploader_id, kind, mime_type, size_bytes, path, created_at`,
		a.ID, a.ProjectID, a.UploaderID, a.Kind, a.MimeType, a.SizeBytes, a.Path)
	return scanAsset(row)
}

func (s *Store) GetAsset(ctx context.Context, id string) (Asset, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, uploader_id, kind, mime_type, size_bytes, path, created_at
		 FROM assets WHERE id = $1`, id)
	return scanAsset(row)
}

func (s *Store) ListAssetsForProject(ctx context.Context, projectID string) ([]Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, uploader_id, kind, mime_type, size_bytes, path, created_at
		 FROM assets WHERE project_id = $1
		 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func scanAsset(row rowScanner) (Asset, error) {
	var a Asset
	if err := row.Scan(&a.ID, &a.ProjectID, &a.UploaderID, &a.Kind, &a.MimeType, &a.SizeBytes, &a.Path, &a.CreatedAt); err != nil {
		return Asset{}, fmt.Errorf("scan asset: %w", err)
	}
	return a, nil
}
