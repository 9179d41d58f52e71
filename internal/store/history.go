package store

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

// AddHistory appends an audit entry for an asset mutation.
func AddHistory(ctx context.Context, q Querier, h model.AssetHistory, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO asset_history (asset_id, transfer_id, action, performed_by, details,
		     from_user_id, to_user_id, from_department_id, to_department_id,
		     from_location_id, to_location_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.AssetID, h.TransferID, h.Action, h.PerformedBy, nullString(h.Details),
		h.FromUserID, h.ToUserID, h.FromDepartmentID, h.ToDepartmentID,
		h.FromLocationID, h.ToLocationID, utc(now),
	)
	if err != nil {
		return fmt.Errorf("recording history for asset %d: %w", h.AssetID, err)
	}
	return nil
}

// GetAssetHistory returns the audit trail of an asset, newest first.
func GetAssetHistory(ctx context.Context, q Querier, assetID int64) ([]model.AssetHistory, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, asset_id, transfer_id, action, performed_by, COALESCE(details, ''),
		        from_user_id, to_user_id, from_department_id, to_department_id,
		        from_location_id, to_location_id, created_at
		 FROM asset_history WHERE asset_id = ?
		 ORDER BY created_at DESC, id DESC`, assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting asset history: %w", err)
	}
	defer rows.Close()

	var entries []model.AssetHistory
	for rows.Next() {
		var h model.AssetHistory
		if err := rows.Scan(&h.ID, &h.AssetID, &h.TransferID, &h.Action, &h.PerformedBy, &h.Details,
			&h.FromUserID, &h.ToUserID, &h.FromDepartmentID, &h.ToDepartmentID,
			&h.FromLocationID, &h.ToLocationID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
