package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

const ruleColumns = `id, name, description, conditions, approver_role, approver_user_id, priority,
	is_active, created_at, updated_at`

// CreateRule inserts an approval rule and returns it.
func CreateRule(ctx context.Context, q Querier, r model.ApprovalRule, now time.Time) (*model.ApprovalRule, error) {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encoding rule conditions: %w", err)
	}

	now = utc(now)
	result, err := q.ExecContext(ctx,
		`INSERT INTO approval_rules (name, description, conditions, approver_role, approver_user_id,
		     priority, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, nullString(r.Description), string(conditions), nullString(r.ApproverRole), r.ApproverUserID,
		r.Priority, r.IsActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting rule id: %w", err)
	}
	return GetRule(ctx, q, id)
}

// GetRule returns an approval rule by ID.
func GetRule(ctx context.Context, q Querier, id int64) (*model.ApprovalRule, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting rule: %w", err)
	}
	return r, nil
}

// UpdateRule overwrites every editable field of a rule.
func UpdateRule(ctx context.Context, q Querier, r model.ApprovalRule, now time.Time) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("encoding rule conditions: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`UPDATE approval_rules
		 SET name = ?, description = ?, conditions = ?, approver_role = ?, approver_user_id = ?,
		     priority = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		r.Name, nullString(r.Description), string(conditions), nullString(r.ApproverRole), r.ApproverUserID,
		r.Priority, r.IsActive, utc(now), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule. Transfers already created keep their
// approval_required flag.
func DeleteRule(ctx context.Context, q Querier, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM approval_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return nil
}

// ListRules returns rules ordered by priority (highest first), then newest
// first. If activeOnly is set, inactive rules are skipped.
func ListRules(ctx context.Context, q Querier, activeOnly bool) ([]model.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY priority DESC, created_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []model.ApprovalRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

func scanRule(s rowScanner) (*model.ApprovalRule, error) {
	r := &model.ApprovalRule{}
	var description, role sql.NullString
	var conditions string
	if err := s.Scan(&r.ID, &r.Name, &description, &conditions, &role, &r.ApproverUserID, &r.Priority,
		&r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
		return nil, fmt.Errorf("decoding conditions of rule %d: %w", r.ID, err)
	}
	r.Description = description.String
	r.ApproverRole = role.String
	return r, nil
}
