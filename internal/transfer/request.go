package transfer

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erazemk/prenos/internal/model"
)

// Reason length limits, counted in characters after trimming.
const (
	MinReasonLength = 10
	MaxReasonLength = 500
)

// CreateRequest describes a transfer to create. Source fields are optional
// context; the destination of every dimension the type moves is required.
type CreateRequest struct {
	Type             model.TransferType `json:"transfer_type"`
	AssetIDs         []int64            `json:"asset_ids"`
	FromUserID       *int64             `json:"from_user_id,omitempty"`
	ToUserID         *int64             `json:"to_user_id,omitempty"`
	FromDepartmentID *int64             `json:"from_department_id,omitempty"`
	ToDepartmentID   *int64             `json:"to_department_id,omitempty"`
	FromLocationID   *int64             `json:"from_location_id,omitempty"`
	ToLocationID     *int64             `json:"to_location_id,omitempty"`
	Reason           string             `json:"reason"`
	Notes            string             `json:"notes,omitempty"`
	ScheduledDate    *time.Time         `json:"scheduled_date,omitempty"`
}

// normalize trims text fields and drops duplicate asset IDs, keeping the
// first occurrence.
func (r *CreateRequest) normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)

	seen := make(map[int64]bool, len(r.AssetIDs))
	ids := r.AssetIDs[:0:0]
	for _, id := range r.AssetIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	r.AssetIDs = ids
}

// validate checks everything that needs no lookups.
func (r *CreateRequest) validate(now time.Time) error {
	if !r.Type.Valid() {
		return newError(ErrValidation, "invalid transfer type %q", r.Type)
	}
	if len(r.AssetIDs) == 0 {
		return newError(ErrValidation, "at least one asset is required")
	}
	if slices.ContainsFunc(r.AssetIDs, func(id int64) bool { return id <= 0 }) {
		return newError(ErrValidation, "asset ids must be positive")
	}

	if r.Type.MovesUser() && r.ToUserID == nil {
		return newError(ErrValidation, "destination user is required for %s transfers", r.Type)
	}
	if r.Type.MovesDepartment() && r.ToDepartmentID == nil {
		return newError(ErrValidation, "destination department is required for %s transfers", r.Type)
	}
	if r.Type.MovesLocation() && r.ToLocationID == nil {
		return newError(ErrValidation, "destination location is required for %s transfers", r.Type)
	}

	if n := utf8.RuneCountInString(r.Reason); n < MinReasonLength || n > MaxReasonLength {
		return newError(ErrValidation, "reason must be between %d and %d characters", MinReasonLength, MaxReasonLength)
	}
	if r.ScheduledDate != nil && !r.ScheduledDate.After(now) {
		return newError(ErrValidation, "scheduled date must be in the future")
	}

	if same(r.FromUserID, r.ToUserID) {
		return newError(ErrValidation, "cannot transfer to same user")
	}
	if same(r.FromDepartmentID, r.ToDepartmentID) {
		return newError(ErrValidation, "cannot transfer to same department")
	}
	if same(r.FromLocationID, r.ToLocationID) {
		return newError(ErrValidation, "cannot transfer to same location")
	}
	return nil
}

// transfer builds the record to insert.
func (r *CreateRequest) transfer(requesterID int64) *model.Transfer {
	return &model.Transfer{
		Type:             r.Type,
		AssetIDs:         r.AssetIDs,
		FromUserID:       r.FromUserID,
		ToUserID:         r.ToUserID,
		FromDepartmentID: r.FromDepartmentID,
		ToDepartmentID:   r.ToDepartmentID,
		FromLocationID:   r.FromLocationID,
		ToLocationID:     r.ToLocationID,
		Reason:           r.Reason,
		Notes:            r.Notes,
		ScheduledDate:    r.ScheduledDate,
		RequestedBy:      requesterID,
	}
}

func same(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}

// appendNote adds note on a new line.
func appendNote(notes, note string) string {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return notes
	case notes == "":
		return note
	}
	return notes + "\n" + note
}
