package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a tracked piece of equipment. Transfers change who holds it, which
// department it belongs to and where it is.
type Asset struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	CategoryID   *int64          `json:"category_id,omitempty"`
	Value        decimal.Decimal `json:"value"`
	Status       string          `json:"status"`
	UserID       *int64          `json:"user_id,omitempty"`
	DepartmentID *int64          `json:"department_id,omitempty"`
	LocationID   *int64          `json:"location_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Joined fields (not always populated).
	CategoryName string `json:"category_name,omitempty"`
}

// Asset statuses.
const (
	AssetStatusActive      = "active"
	AssetStatusMaintenance = "maintenance"
	AssetStatusRetired     = "retired"
)

// Department is an organizational unit assets can be assigned to.
type Department struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a physical place assets can be kept at.
type Location struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Category groups assets for approval rules.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetHistory is an audit entry for a single asset mutation.
type AssetHistory struct {
	ID               int64     `json:"id"`
	AssetID          int64     `json:"asset_id"`
	TransferID       *int64    `json:"transfer_id,omitempty"`
	Action           string    `json:"action"`
	PerformedBy      *int64    `json:"performed_by,omitempty"`
	Details          string    `json:"details,omitempty"`
	FromUserID       *int64    `json:"from_user_id,omitempty"`
	ToUserID         *int64    `json:"to_user_id,omitempty"`
	FromDepartmentID *int64    `json:"from_department_id,omitempty"`
	ToDepartmentID   *int64    `json:"to_department_id,omitempty"`
	FromLocationID   *int64    `json:"from_location_id,omitempty"`
	ToLocationID     *int64    `json:"to_location_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// History actions.
const (
	HistoryTransferred    = "TRANSFERRED"
	HistoryTransferUndone = "TRANSFER_UNDONE"
)
