package transfer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/prenos/internal/events"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// Execute applies an approved transfer to its assets. Calling it again for a
// completed transfer returns that transfer unchanged, and overlapping calls
// for the same transfer run one after the other, so the assets are mutated
// exactly once. The requester and managers may execute.
func (s *Service) Execute(ctx context.Context, id, actorID int64) (*model.Transfer, error) {
	actor, err := s.activeUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	t, err := s.getTransfer(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !mayOperate(t, actor) {
		return nil, newError(ErrForbidden, "user %d may not execute transfer %d", actorID, id)
	}
	return s.execute(ctx, id, actorID)
}

// ExecuteScheduled runs a due transfer for the scheduler. It records the
// requester as the actor but does not check that they may still operate the
// transfer, so a requester who has since been removed does not block it.
func (s *Service) ExecuteScheduled(ctx context.Context, id int64) (*model.Transfer, error) {
	t, err := s.getTransfer(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, id, t.RequestedBy)
}

func (s *Service) execute(ctx context.Context, id, actorID int64) (*model.Transfer, error) {
	release, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("executing transfer %d: %w", id, err)
	}
	defer release()

	var t *model.Transfer
	var applied bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if t, err = s.getTransfer(ctx, tx, id); err != nil {
			return err
		}
		if t.Status == model.StatusCompleted {
			return nil
		}
		if err := advance(t, actionExecute); err != nil {
			return newError(ErrInvalidState, "transfer %d must be approved before execution: status is %s", id, t.Status)
		}

		now := s.Now()
		for _, assetID := range t.AssetIDs {
			if err := s.applyToAsset(ctx, tx, t, assetID, actorID); err != nil {
				return err
			}
		}

		t.CompletedAt = &now
		if err := s.update(ctx, tx, t, model.StatusApproved); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return t, nil
	}

	s.unlock(ctx, t)
	s.logger.Info("transfer executed", "transfer", id, "user", actorID, "assets", len(t.AssetIDs))
	s.publish(events.TransferCompleted, t, actorID)
	return t, nil
}

// applyToAsset moves one asset to the destination of t while holding its row
// lock, recording what it had before and a history entry.
func (s *Service) applyToAsset(ctx context.Context, tx *sql.Tx, t *model.Transfer, assetID, actorID int64) error {
	a, err := store.LockAssetRow(ctx, tx, assetID)
	if err != nil {
		return err
	}
	if a == nil {
		return newError(ErrNotFound, "asset %d not found", assetID)
	}

	err = store.CaptureTransferAsset(ctx, tx, model.TransferAsset{
		TransferID:       t.ID,
		AssetID:          a.ID,
		PrevUserID:       a.UserID,
		PrevDepartmentID: a.DepartmentID,
		PrevLocationID:   a.LocationID,
	})
	if err != nil {
		return err
	}

	h := model.AssetHistory{
		AssetID:     a.ID,
		TransferID:  &t.ID,
		Action:      model.HistoryTransferred,
		PerformedBy: &actorID,
		Details:     fmt.Sprintf("Transfer #%d: %s", t.ID, t.Reason),
	}

	userID, deptID, locID := a.UserID, a.DepartmentID, a.LocationID
	if t.Type.MovesUser() {
		h.FromUserID, h.ToUserID = a.UserID, t.ToUserID
		userID = t.ToUserID
	}
	if t.Type.MovesDepartment() {
		h.FromDepartmentID, h.ToDepartmentID = a.DepartmentID, t.ToDepartmentID
		deptID = t.ToDepartmentID
	}
	if t.Type.MovesLocation() {
		h.FromLocationID, h.ToLocationID = a.LocationID, t.ToLocationID
		locID = t.ToLocationID
	}

	now := s.Now()
	if err := store.SetAssetAssignment(ctx, tx, a.ID, userID, deptID, locID, now); err != nil {
		return err
	}
	return store.AddHistory(ctx, tx, h, now)
}
