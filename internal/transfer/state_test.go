package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/erazemk/prenos/internal/model"
)

func TestAdvance(t *testing.T) {
	statuses := []model.TransferStatus{
		model.StatusPending, model.StatusApproved, model.StatusRejected,
		model.StatusCancelled, model.StatusCompleted,
	}
	allowed := map[action]map[model.TransferStatus]model.TransferStatus{
		actionApprove: {model.StatusPending: model.StatusApproved},
		actionReject:  {model.StatusPending: model.StatusRejected},
		actionCancel:  {model.StatusPending: model.StatusCancelled, model.StatusApproved: model.StatusCancelled},
		actionExecute: {model.StatusApproved: model.StatusCompleted},
		actionUndo:    {model.StatusCompleted: model.StatusCancelled},
	}

	for a, targets := range allowed {
		for _, from := range statuses {
			tr := &model.Transfer{ID: 1, Status: from}
			err := advance(tr, a)

			if to, ok := targets[from]; ok {
				assert.NoError(t, err, "%s from %s", a, from)
				assert.Equal(t, to, tr.Status)
			} else {
				assert.ErrorIs(t, err, ErrInvalidState, "%s from %s", a, from)
				assert.Equal(t, from, tr.Status, "refused transition leaves status alone")
			}
		}
	}
}

func TestNothingReachesCompletedWithoutApproval(t *testing.T) {
	for a, tr := range transitions {
		if tr.to == model.StatusCompleted {
			assert.Equal(t, []model.TransferStatus{model.StatusApproved}, tr.from, "action %s", a)
		}
	}
	assert.Equal(t, model.StatusPending, initialStatus(true))
	assert.Equal(t, model.StatusApproved, initialStatus(false))
}

func TestErrors(t *testing.T) {
	err := &ConflictError{Assets: map[int64]int64{9: 2, 7: 3}}
	assert.Equal(t, "asset 7 is already locked by transfer 3; asset 9 is already locked by transfer 2", err.Error())
	assert.ErrorIs(t, err, ErrConflict)

	assert.True(t, IsPermanent(newError(ErrValidation, "bad")))
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(assert.AnError))
}
