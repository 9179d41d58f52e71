package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/prenos/internal/model"
)

func TestUndoWithinWindow(t *testing.T) {
	f := newFixture(t)
	laptop := f.asset("Laptop", 100)

	tr, err := f.svc.Create(f.ctx, f.toFinance(laptop), f.requester.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, tr.Status)
	require.Equal(t, f.finance.ID, *f.reload(laptop).DepartmentID)

	f.now = f.now.Add(23*time.Hour + 59*time.Minute)
	tr, err = f.svc.Undo(f.ctx, tr.ID, f.requester.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCancelled, tr.Status)
	assert.Contains(t, tr.Notes, "Undone by user")
	assert.Equal(t, f.it.ID, *f.reload(laptop).DepartmentID)

	h := f.history(laptop.ID)
	require.Len(t, h, 2)
	assert.Equal(t, model.HistoryTransferUndone, h[0].Action)
	assert.Equal(t, f.finance.ID, *h[0].FromDepartmentID)
	assert.Equal(t, f.it.ID, *h[0].ToDepartmentID)

	locked, _ := f.locks.CheckLocked(f.ctx, []int64{laptop.ID})
	assert.Empty(t, locked)

	_, err = f.svc.Undo(f.ctx, tr.ID, f.requester.ID)
	assert.ErrorIs(t, err, ErrInvalidState, "an undone transfer cannot be undone again")
}

func TestUndoAfterWindow(t *testing.T) {
	f := newFixture(t)
	laptop := f.asset("Laptop", 100)

	tr, err := f.svc.Create(f.ctx, f.toFinance(laptop), f.requester.ID)
	require.NoError(t, err)

	f.now = f.now.Add(24*time.Hour + time.Minute)
	_, err = f.svc.Undo(f.ctx, tr.ID, f.requester.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, f.finance.ID, *f.reload(laptop).DepartmentID)

	got, err := f.svc.Get(f.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestUndoBlockedByNewTransfer(t *testing.T) {
	f := newFixture(t)
	laptop := f.asset("Laptop", 100)

	done, err := f.svc.Create(f.ctx, f.toFinance(laptop), f.requester.ID)
	require.NoError(t, err)

	f.minValueRule(0, model.RoleManager)
	next, err := f.svc.Create(f.ctx, CreateRequest{
		Type:         model.TransferLocation,
		AssetIDs:     []int64{laptop.ID},
		ToLocationID: &f.warehouse.ID,
		Reason:       "moving to the warehouse",
	}, f.requester.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, next.Status)

	_, err = f.svc.Undo(f.ctx, done.ID, f.requester.ID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, map[int64]int64{laptop.ID: next.ID}, conflict.Assets)

	locked, _ := f.locks.CheckLocked(f.ctx, []int64{laptop.ID})
	assert.Equal(t, map[int64]int64{laptop.ID: next.ID}, locked, "failed undo leaves the other reservation alone")
}

func TestUndoRestoresEachAssetsOwnValues(t *testing.T) {
	f := newFixture(t)
	laptop := f.asset("Laptop", 100)
	phone := f.asset("Phone", 100)

	// Give the assets different starting departments.
	_, err := f.svc.Create(f.ctx, f.toFinance(phone), f.requester.ID)
	require.NoError(t, err)

	tr, err := f.svc.Create(f.ctx, CreateRequest{
		Type:           model.TransferComplete,
		AssetIDs:       []int64{laptop.ID, phone.ID},
		ToUserID:       &f.approver.ID,
		ToDepartmentID: &f.it.ID,
		ToLocationID:   &f.warehouse.ID,
		Reason:         "equipment for the new desk",
	}, f.requester.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, tr.Status)

	_, err = f.svc.Undo(f.ctx, tr.ID, f.manager.ID)
	require.NoError(t, err)

	gotLaptop, gotPhone := f.reload(laptop), f.reload(phone)
	assert.Equal(t, f.it.ID, *gotLaptop.DepartmentID)
	assert.Equal(t, f.finance.ID, *gotPhone.DepartmentID)
	assert.Nil(t, gotLaptop.UserID)
	assert.Equal(t, f.office.ID, *gotPhone.LocationID)
}

func TestUndoForbiddenForOthers(t *testing.T) {
	f := newFixture(t)
	tr, err := f.svc.Create(f.ctx, f.toFinance(f.asset("Laptop", 100)), f.requester.ID)
	require.NoError(t, err)

	_, err = f.svc.Undo(f.ctx, tr.ID, f.approver.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}
