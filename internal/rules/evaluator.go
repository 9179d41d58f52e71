// Package rules decides whether a transfer needs approval and who may give it.
package rules

import (
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/erazemk/prenos/internal/model"
)

// Subject is what rules are evaluated against: the declared value of all
// involved assets, their category names, and the names of the source and
// destination departments.
type Subject struct {
	TotalValue  decimal.Decimal
	Categories  []string
	Departments []string
}

// RequiresApproval reports whether any active rule matches s.
func RequiresApproval(s Subject, rules []model.ApprovalRule) bool {
	return len(Matching(s, rules)) > 0
}

// Matching returns the active rules that match s, highest priority first.
// Rules of equal priority keep their given order.
func Matching(s Subject, rules []model.ApprovalRule) []model.ApprovalRule {
	var out []model.ApprovalRule
	for _, r := range rules {
		if r.IsActive && Matches(s, r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Matches reports whether a single rule matches s, ignoring IsActive. Each
// configured condition yields one result; they are combined with AND when
// RequiresAllConditions is set and with OR otherwise. A rule without any
// configured condition never matches.
func Matches(s Subject, r model.ApprovalRule) bool {
	c := r.Conditions
	var results []bool

	if c.MinValue.Valid {
		results = append(results, s.TotalValue.GreaterThanOrEqual(c.MinValue.Decimal))
	}
	if c.MaxValue.Valid {
		results = append(results, s.TotalValue.LessThanOrEqual(c.MaxValue.Decimal))
	}
	if len(c.Categories) > 0 {
		results = append(results, intersects(c.Categories, s.Categories))
	}
	if len(c.Departments) > 0 {
		results = append(results, intersects(c.Departments, s.Departments))
	}

	if len(results) == 0 {
		return false
	}
	if c.RequiresAllConditions {
		return !slices.Contains(results, false)
	}
	return slices.Contains(results, true)
}

// CanApprove reports whether user is named as approver by any of the
// matching rules, by role or by ID.
func CanApprove(user *model.User, matching []model.ApprovalRule) bool {
	if user == nil {
		return false
	}
	for _, r := range matching {
		if r.ApproverRole != "" && r.ApproverRole == user.Role {
			return true
		}
		if r.ApproverUserID != nil && *r.ApproverUserID == user.ID {
			return true
		}
	}
	return false
}

func intersects(set, values []string) bool {
	for _, v := range values {
		if slices.Contains(set, v) {
			return true
		}
	}
	return false
}
