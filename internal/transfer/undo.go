package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/prenos/internal/events"
	"github.com/erazemk/prenos/internal/lock"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// Undo reverts a completed transfer within the undo window. The transfer ends
// up CANCELLED. The requester and managers may undo.
//
// Each asset gets back the values captured when the transfer executed, not
// the transfer's From fields, so assets that started out in different places
// return to their own places. Transfers executed without a captured snapshot
// fall back to the From fields.
func (s *Service) Undo(ctx context.Context, id, actorID int64) (*model.Transfer, error) {
	actor, err := s.activeUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	t, err := s.getTransfer(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !mayOperate(t, actor) {
		return nil, newError(ErrForbidden, "user %d may not undo transfer %d", actorID, id)
	}
	if err := s.checkUndoable(t); err != nil {
		return nil, err
	}

	// Hold the assets for the duration of the undo so no new transfer can
	// claim them half way.
	err = s.locks.Lock(ctx, t.AssetIDs, t.ID)
	var held *lock.AssetsHeldError
	if errors.As(err, &held) {
		return nil, &ConflictError{Assets: held.Holders}
	}
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, t)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if t, err = s.getTransfer(ctx, tx, id); err != nil {
			return err
		}
		if err := s.checkUndoable(t); err != nil {
			return err
		}

		snapshots, err := store.GetTransferAssets(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		for _, snap := range snapshots {
			if err := s.revertAsset(ctx, tx, t, snap, actorID); err != nil {
				return err
			}
		}

		if err := advance(t, actionUndo); err != nil {
			return err
		}
		note := fmt.Sprintf("Undone by user %d on %s", actorID, s.Now().UTC().Format(time.RFC3339))
		t.Notes = appendNote(t.Notes, note)
		return s.update(ctx, tx, t, model.StatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer undone", "transfer", id, "user", actorID)
	s.publish(events.TransferUndone, t, actorID)
	return t, nil
}

func (s *Service) checkUndoable(t *model.Transfer) error {
	if t.Status != model.StatusCompleted || t.CompletedAt == nil {
		return newError(ErrInvalidState, "only completed transfers can be undone: transfer %d is %s", t.ID, t.Status)
	}
	if s.Now().Sub(*t.CompletedAt) > s.undoWindow {
		return newError(ErrValidation, "undo window of %s exceeded for transfer %d", s.undoWindow, t.ID)
	}
	return nil
}

// revertAsset restores the dimensions t moved on one asset. Snapshots that
// were never captured fall back to the transfer's source fields.
func (s *Service) revertAsset(ctx context.Context, tx *sql.Tx, t *model.Transfer, snap model.TransferAsset, actorID int64) error {
	a, err := store.LockAssetRow(ctx, tx, snap.AssetID)
	if err != nil {
		return err
	}
	if a == nil {
		return newError(ErrNotFound, "asset %d not found", snap.AssetID)
	}

	prevUser, prevDept, prevLoc := snap.PrevUserID, snap.PrevDepartmentID, snap.PrevLocationID
	if !snap.Captured {
		prevUser, prevDept, prevLoc = t.FromUserID, t.FromDepartmentID, t.FromLocationID
	}

	h := model.AssetHistory{
		AssetID:     a.ID,
		TransferID:  &t.ID,
		Action:      model.HistoryTransferUndone,
		PerformedBy: &actorID,
		Details:     fmt.Sprintf("Undone transfer #%d", t.ID),
	}

	userID, deptID, locID := a.UserID, a.DepartmentID, a.LocationID
	if t.Type.MovesUser() {
		h.FromUserID, h.ToUserID = a.UserID, prevUser
		userID = prevUser
	}
	if t.Type.MovesDepartment() {
		h.FromDepartmentID, h.ToDepartmentID = a.DepartmentID, prevDept
		deptID = prevDept
	}
	if t.Type.MovesLocation() {
		h.FromLocationID, h.ToLocationID = a.LocationID, prevLoc
		locID = prevLoc
	}

	now := s.Now()
	if err := store.SetAssetAssignment(ctx, tx, a.ID, userID, deptID, locID, now); err != nil {
		return err
	}
	return store.AddHistory(ctx, tx, h, now)
}
