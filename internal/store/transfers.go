package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

const transferColumns = `id, transfer_type, status, from_user_id, to_user_id, from_department_id,
	to_department_id, from_location_id, to_location_id, approval_required, reason, notes,
	scheduled_date, requested_by, approved_by, rejected_by, rejection_reason, completed_at,
	created_at, updated_at`

// CreateTransfer inserts a transfer and its asset list. The ID, CreatedAt
// and UpdatedAt fields of t are set on success.
func CreateTransfer(ctx context.Context, q Querier, t *model.Transfer, now time.Time) error {
	now = utc(now)
	result, err := q.ExecContext(ctx,
		`INSERT INTO transfers (transfer_type, status, from_user_id, to_user_id, from_department_id,
		     to_department_id, from_location_id, to_location_id, approval_required, reason, notes,
		     scheduled_date, requested_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Type, t.Status, t.FromUserID, t.ToUserID, t.FromDepartmentID,
		t.ToDepartmentID, t.FromLocationID, t.ToLocationID, t.ApprovalRequired, t.Reason, nullString(t.Notes),
		utcPtr(t.ScheduledDate), t.RequestedBy, now, now,
	)
	if err != nil {
		return fmt.Errorf("creating transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting transfer id: %w", err)
	}

	for i, assetID := range t.AssetIDs {
		_, err := q.ExecContext(ctx,
			`INSERT INTO transfer_assets (transfer_id, asset_id, position) VALUES (?, ?, ?)`,
			id, assetID, i,
		)
		if err != nil {
			return fmt.Errorf("adding asset %d to transfer: %w", assetID, err)
		}
	}

	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// GetTransfer returns a transfer by ID.
func GetTransfer(ctx context.Context, q Querier, id int64) (*model.Transfer, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id,
	)
	t, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}

	if t.AssetIDs, err = transferAssetIDs(ctx, q, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTransfer writes the mutable lifecycle fields of t, but only if the
// stored status still equals from. It reports whether a row was updated.
func UpdateTransfer(ctx context.Context, q Querier, t *model.Transfer, from model.TransferStatus, now time.Time) (bool, error) {
	now = utc(now)
	result, err := q.ExecContext(ctx,
		`UPDATE transfers
		 SET status = ?, approved_by = ?, rejected_by = ?, rejection_reason = ?, notes = ?,
		     completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		t.Status, t.ApprovedBy, t.RejectedBy, nullString(t.RejectionReason), nullString(t.Notes),
		utcPtr(t.CompletedAt), now, t.ID, from,
	)
	if err != nil {
		return false, fmt.Errorf("updating transfer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating transfer: %w", err)
	}
	if n == 1 {
		t.UpdatedAt = now
	}
	return n == 1, nil
}

// ListTransfers returns transfers matching the filter, newest first, and the
// total number of matches ignoring pagination.
func ListTransfers(ctx context.Context, q Querier, f model.TransferFilter) ([]model.Transfer, int, error) {
	where := ` WHERE 1=1`
	var args []any

	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Type != "" {
		where += ` AND transfer_type = ?`
		args = append(args, f.Type)
	}
	if f.RequestedBy > 0 {
		where += ` AND requested_by = ?`
		args = append(args, f.RequestedBy)
	}
	if f.From != nil {
		where += ` AND created_at >= ?`
		args = append(args, utc(*f.From))
	}
	if f.To != nil {
		where += ` AND created_at <= ?`
		args = append(args, utc(*f.To))
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting transfers: %w", err)
	}

	query := `SELECT ` + transferColumns + ` FROM transfers` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		page := max(f.Page, 1)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, (page-1)*f.Limit)
	}

	transfers, err := queryTransfers(ctx, q, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}

// ListDueTransfers returns approved transfers whose scheduled date is at or
// before now. Transfers with a failed job are left out; they wait for a
// person to cancel or execute them.
func ListDueTransfers(ctx context.Context, q Querier, now time.Time) ([]model.Transfer, error) {
	return queryTransfers(ctx, q,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE status = ? AND scheduled_date IS NOT NULL AND scheduled_date <= ?
		   AND NOT EXISTS (SELECT 1 FROM jobs WHERE jobs.transfer_id = transfers.id AND jobs.status = ?)
		 ORDER BY scheduled_date, id`,
		model.StatusApproved, utc(now), model.JobFailed,
	)
}

// GetTransferAssets returns the per-asset snapshots of a transfer.
func GetTransferAssets(ctx context.Context, q Querier, transferID int64) ([]model.TransferAsset, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT transfer_id, asset_id, prev_user_id, prev_department_id, prev_location_id, captured
		 FROM transfer_assets WHERE transfer_id = ? ORDER BY position`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting transfer assets: %w", err)
	}
	defer rows.Close()

	var assets []model.TransferAsset
	for rows.Next() {
		var ta model.TransferAsset
		if err := rows.Scan(&ta.TransferID, &ta.AssetID, &ta.PrevUserID, &ta.PrevDepartmentID,
			&ta.PrevLocationID, &ta.Captured); err != nil {
			return nil, fmt.Errorf("scanning transfer asset: %w", err)
		}
		assets = append(assets, ta)
	}
	return assets, rows.Err()
}

// CaptureTransferAsset records the values an asset had before the transfer
// was applied to it.
func CaptureTransferAsset(ctx context.Context, q Querier, ta model.TransferAsset) error {
	_, err := q.ExecContext(ctx,
		`UPDATE transfer_assets
		 SET prev_user_id = ?, prev_department_id = ?, prev_location_id = ?, captured = 1
		 WHERE transfer_id = ? AND asset_id = ?`,
		ta.PrevUserID, ta.PrevDepartmentID, ta.PrevLocationID, ta.TransferID, ta.AssetID,
	)
	if err != nil {
		return fmt.Errorf("capturing asset %d: %w", ta.AssetID, err)
	}
	return nil
}

func queryTransfers(ctx context.Context, q Querier, query string, args ...any) ([]model.Transfer, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}

	var transfers []model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	rows.Close()

	// Asset lists are loaded after the cursor is closed so a single-connection
	// transaction never has two open statements.
	for i := range transfers {
		if transfers[i].AssetIDs, err = transferAssetIDs(ctx, q, transfers[i].ID); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

func transferAssetIDs(ctx context.Context, q Querier, transferID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT asset_id FROM transfer_assets WHERE transfer_id = ? ORDER BY position`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting transfer asset ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning transfer asset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTransfer(s rowScanner) (*model.Transfer, error) {
	t := &model.Transfer{}
	var notes, rejection sql.NullString
	err := s.Scan(&t.ID, &t.Type, &t.Status, &t.FromUserID, &t.ToUserID, &t.FromDepartmentID,
		&t.ToDepartmentID, &t.FromLocationID, &t.ToLocationID, &t.ApprovalRequired, &t.Reason, &notes,
		&t.ScheduledDate, &t.RequestedBy, &t.ApprovedBy, &t.RejectedBy, &rejection, &t.CompletedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Notes = notes.String
	t.RejectionReason = rejection.String
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
