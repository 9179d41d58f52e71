package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

// CreateDepartment creates a new department.
func CreateDepartment(ctx context.Context, q Querier, name string) (*model.Department, error) {
	id, err := insertNamed(ctx, q, "departments", name)
	if err != nil {
		return nil, fmt.Errorf("creating department: %w", err)
	}
	return GetDepartment(ctx, q, id)
}

// GetDepartment returns a department by ID.
func GetDepartment(ctx context.Context, q Querier, id int64) (*model.Department, error) {
	d := &model.Department{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM departments WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting department: %w", err)
	}
	return d, nil
}

// CreateLocation creates a new location.
func CreateLocation(ctx context.Context, q Querier, name string) (*model.Location, error) {
	id, err := insertNamed(ctx, q, "locations", name)
	if err != nil {
		return nil, fmt.Errorf("creating location: %w", err)
	}
	return GetLocation(ctx, q, id)
}

// GetLocation returns a location by ID.
func GetLocation(ctx context.Context, q Querier, id int64) (*model.Location, error) {
	l := &model.Location{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM locations WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return l, nil
}

// CreateCategory creates a new asset category.
func CreateCategory(ctx context.Context, q Querier, name string) (*model.Category, error) {
	id, err := insertNamed(ctx, q, "categories", name)
	if err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}
	c := &model.Category{}
	err = q.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting category: %w", err)
	}
	return c, nil
}

// table is one of a fixed set of names, never user input.
func insertNamed(ctx context.Context, q Querier, table, name string) (int64, error) {
	result, err := q.ExecContext(ctx, `INSERT INTO `+table+` (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListDepartments returns all departments ordered by name.
func ListDepartments(ctx context.Context, q Querier) ([]model.Department, error) {
	var out []model.Department
	err := listNamed(ctx, q, "departments", func(id int64, name string, created time.Time) {
		out = append(out, model.Department{ID: id, Name: name, CreatedAt: created})
	})
	if err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	return out, nil
}

// ListLocations returns all locations ordered by name.
func ListLocations(ctx context.Context, q Querier) ([]model.Location, error) {
	var out []model.Location
	err := listNamed(ctx, q, "locations", func(id int64, name string, created time.Time) {
		out = append(out, model.Location{ID: id, Name: name, CreatedAt: created})
	})
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	return out, nil
}

// ListCategories returns all categories ordered by name.
func ListCategories(ctx context.Context, q Querier) ([]model.Category, error) {
	var out []model.Category
	err := listNamed(ctx, q, "categories", func(id int64, name string, created time.Time) {
		out = append(out, model.Category{ID: id, Name: name, CreatedAt: created})
	})
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return out, nil
}

func listNamed(ctx context.Context, q Querier, table string, fn func(int64, string, time.Time)) error {
	rows, err := q.QueryContext(ctx, `SELECT id, name, created_at FROM `+table+` ORDER BY name`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      int64
			name    string
			created time.Time
		)
		if err := rows.Scan(&id, &name, &created); err != nil {
			return err
		}
		fn(id, name, created)
	}
	return rows.Err()
}
