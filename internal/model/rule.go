package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleConditions are the optional predicates of an approval rule. Unset
// fields are not evaluated.
type RuleConditions struct {
	MinValue              decimal.NullDecimal `json:"min_value"`
	MaxValue              decimal.NullDecimal `json:"max_value"`
	Categories            []string            `json:"categories,omitempty"`
	Departments           []string            `json:"departments,omitempty"`
	RequiresAllConditions bool                `json:"requires_all_conditions,omitempty"`
}

// ApprovalRule decides whether a transfer needs sign-off and who may give it.
type ApprovalRule struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Conditions     RuleConditions `json:"conditions"`
	ApproverRole   string         `json:"approver_role,omitempty"`
	ApproverUserID *int64         `json:"approver_user_id,omitempty"`
	Priority       int            `json:"priority"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
