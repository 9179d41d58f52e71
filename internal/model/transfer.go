package model

import "time"

// TransferType selects which asset fields a transfer changes.
type TransferType string

// Transfer types.
const (
	TransferUser       TransferType = "USER"
	TransferDepartment TransferType = "DEPARTMENT"
	TransferLocation   TransferType = "LOCATION"
	TransferComplete   TransferType = "COMPLETE"
)

// Valid reports whether t is a known transfer type.
func (t TransferType) Valid() bool {
	switch t {
	case TransferUser, TransferDepartment, TransferLocation, TransferComplete:
		return true
	}
	return false
}

// MovesUser reports whether the transfer changes the assigned user.
func (t TransferType) MovesUser() bool {
	return t == TransferUser || t == TransferComplete
}

// MovesDepartment reports whether the transfer changes the department.
func (t TransferType) MovesDepartment() bool {
	return t == TransferDepartment || t == TransferComplete
}

// MovesLocation reports whether the transfer changes the location.
func (t TransferType) MovesLocation() bool {
	return t == TransferLocation || t == TransferComplete
}

// TransferStatus is the lifecycle state of a transfer.
type TransferStatus string

// Transfer statuses.
const (
	StatusPending   TransferStatus = "PENDING"
	StatusApproved  TransferStatus = "APPROVED"
	StatusRejected  TransferStatus = "REJECTED"
	StatusCancelled TransferStatus = "CANCELLED"
	StatusCompleted TransferStatus = "COMPLETED"
)

// Transfer is a request to move one or more assets to a new user,
// department, location, or all three.
type Transfer struct {
	ID               int64          `json:"id"`
	Type             TransferType   `json:"transfer_type"`
	Status           TransferStatus `json:"status"`
	AssetIDs         []int64        `json:"asset_ids"`
	FromUserID       *int64         `json:"from_user_id,omitempty"`
	ToUserID         *int64         `json:"to_user_id,omitempty"`
	FromDepartmentID *int64         `json:"from_department_id,omitempty"`
	ToDepartmentID   *int64         `json:"to_department_id,omitempty"`
	FromLocationID   *int64         `json:"from_location_id,omitempty"`
	ToLocationID     *int64         `json:"to_location_id,omitempty"`
	ApprovalRequired bool           `json:"approval_required"`
	Reason           string         `json:"reason"`
	Notes            string         `json:"notes,omitempty"`
	ScheduledDate    *time.Time     `json:"scheduled_date,omitempty"`
	RequestedBy      int64          `json:"requested_by"`
	ApprovedBy       *int64         `json:"approved_by,omitempty"`
	RejectedBy       *int64         `json:"rejected_by,omitempty"`
	RejectionReason  string         `json:"rejection_reason,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TransferAsset holds the values an asset had right before a transfer was
// applied to it. Undo restores these.
type TransferAsset struct {
	TransferID       int64  `json:"transfer_id"`
	AssetID          int64  `json:"asset_id"`
	PrevUserID       *int64 `json:"prev_user_id,omitempty"`
	PrevDepartmentID *int64 `json:"prev_department_id,omitempty"`
	PrevLocationID   *int64 `json:"prev_location_id,omitempty"`
	Captured         bool   `json:"captured"`
}

// TransferFilter narrows transfer listings. Zero values match everything.
type TransferFilter struct {
	Status      TransferStatus
	Type        TransferType
	RequestedBy int64
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}
