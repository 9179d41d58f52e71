package transfer

import "github.com/erazemk/prenos/internal/model"

type action string

const (
	actionApprove action = "approve"
	actionReject  action = "reject"
	actionCancel  action = "cancel"
	actionExecute action = "execute"
	actionUndo    action = "undo"
)

type transition struct {
	from []model.TransferStatus
	to   model.TransferStatus
}

// transitions is the complete lifecycle. Creation picks PENDING or APPROVED
// directly; everything else goes through this table.
var transitions = map[action]transition{
	actionApprove: {from: []model.TransferStatus{model.StatusPending}, to: model.StatusApproved},
	actionReject:  {from: []model.TransferStatus{model.StatusPending}, to: model.StatusRejected},
	actionCancel:  {from: []model.TransferStatus{model.StatusPending, model.StatusApproved}, to: model.StatusCancelled},
	actionExecute: {from: []model.TransferStatus{model.StatusApproved}, to: model.StatusCompleted},
	actionUndo:    {from: []model.TransferStatus{model.StatusCompleted}, to: model.StatusCancelled},
}

// initialStatus returns the status a new transfer starts in.
func initialStatus(approvalRequired bool) model.TransferStatus {
	if approvalRequired {
		return model.StatusPending
	}
	return model.StatusApproved
}

// advance moves t to the target status of a, or returns ErrInvalidState
// without touching t.
func advance(t *model.Transfer, a action) error {
	tr := transitions[a]
	for _, from := range tr.from {
		if t.Status == from {
			t.Status = tr.to
			return nil
		}
	}
	return newError(ErrInvalidState, "cannot %s transfer %d: status is %s", a, t.ID, t.Status)
}
