package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

const assetColumns = `a.id, a.name, a.category_id, a.value, a.status, a.user_id, a.department_id,
	a.location_id, a.created_at, a.updated_at, c.name`

// CreateAsset creates a new asset.
func CreateAsset(ctx context.Context, q Querier, a model.Asset) (*model.Asset, error) {
	if a.Status == "" {
		a.Status = model.AssetStatusActive
	}
	result, err := q.ExecContext(ctx,
		`INSERT INTO assets (name, category_id, value, status, user_id, department_id, location_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.CategoryID, a.Value, a.Status, a.UserID, a.DepartmentID, a.LocationID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating asset: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting asset id: %w", err)
	}

	return GetAsset(ctx, q, id)
}

// GetAsset returns an asset by ID.
func GetAsset(ctx context.Context, q Querier, id int64) (*model.Asset, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+assetColumns+`
		 FROM assets a LEFT JOIN categories c ON c.id = a.category_id
		 WHERE a.id = ?`, id,
	)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset: %w", err)
	}
	return a, nil
}

// GetAssets returns the assets with the given IDs, ordered by ID. Missing IDs
// are silently skipped; callers compare lengths.
func GetAssets(ctx context.Context, q Querier, ids []int64) ([]model.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+assetColumns+`
		 FROM assets a LEFT JOIN categories c ON c.id = a.category_id
		 WHERE a.id IN (`+placeholders(len(ids))+`)
		 ORDER BY a.id`, int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("getting assets: %w", err)
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// ListAssets returns all assets, optionally filtered by status.
func ListAssets(ctx context.Context, q Querier, status string) ([]model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets a LEFT JOIN categories c ON c.id = a.category_id`
	var args []any
	if status != "" {
		query += ` WHERE a.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY a.name, a.id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

// LockAssetRow takes a write lock on an asset row and returns its current
// values. It must run inside a transaction; the lock is held until commit or
// rollback.
func LockAssetRow(ctx context.Context, q Querier, id int64) (*model.Asset, error) {
	var locked int64
	err := q.QueryRowContext(ctx,
		`UPDATE assets SET updated_at = updated_at WHERE id = ? RETURNING id`, id,
	).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locking asset %d: %w", id, err)
	}
	return GetAsset(ctx, q, locked)
}

// SetAssetAssignment overwrites the user, department and location of an asset.
func SetAssetAssignment(ctx context.Context, q Querier, id int64, userID, departmentID, locationID *int64, now time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE assets SET user_id = ?, department_id = ?, location_id = ?, updated_at = ?
		 WHERE id = ?`,
		userID, departmentID, locationID, utc(now), id,
	)
	if err != nil {
		return fmt.Errorf("updating asset %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("updating asset %d: no such asset", id)
	}
	return nil
}

// SetAssetStatus changes an asset's status.
func SetAssetStatus(ctx context.Context, q Querier, id int64, status string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE assets SET status = ?, updated_at = ? WHERE id = ?`,
		status, utc(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("setting asset status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(s rowScanner) (*model.Asset, error) {
	a := &model.Asset{}
	var category sql.NullString
	if err := s.Scan(&a.ID, &a.Name, &a.CategoryID, &a.Value, &a.Status, &a.UserID, &a.DepartmentID,
		&a.LocationID, &a.CreatedAt, &a.UpdatedAt, &category); err != nil {
		return nil, err
	}
	a.CategoryName = category.String
	return a, nil
}
