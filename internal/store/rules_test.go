package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/prenos/internal/db"
	"github.com/erazemk/prenos/internal/model"
)

func TestRuleRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	rule, err := CreateRule(ctx, database, model.ApprovalRule{
		Name: "Expensive",
		Conditions: model.RuleConditions{
			MinValue:    decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			Departments: []string{"Finance"},
		},
		ApproverRole: model.RoleManager,
		Priority:     5,
		IsActive:     true,
	}, time.Now())
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	got, err := GetRule(ctx, database, rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if !got.Conditions.MinValue.Valid || !got.Conditions.MinValue.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected min value 1000, got %+v", got.Conditions.MinValue)
	}
	if got.Conditions.MaxValue.Valid {
		t.Error("expected max value to stay unset")
	}
	if len(got.Conditions.Departments) != 1 || got.Conditions.Departments[0] != "Finance" {
		t.Errorf("unexpected departments: %v", got.Conditions.Departments)
	}
	if got.ApproverRole != model.RoleManager || got.ApproverUserID != nil {
		t.Errorf("unexpected approver: role=%q user=%v", got.ApproverRole, got.ApproverUserID)
	}
}

func TestListRulesOrderAndActive(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()

	low, _ := CreateRule(ctx, database, model.ApprovalRule{Name: "low", Priority: 1, IsActive: true, ApproverRole: model.RoleAdmin}, now)
	high, _ := CreateRule(ctx, database, model.ApprovalRule{Name: "high", Priority: 10, IsActive: true, ApproverRole: model.RoleAdmin}, now)
	off, _ := CreateRule(ctx, database, model.ApprovalRule{Name: "off", Priority: 20, IsActive: false, ApproverRole: model.RoleAdmin}, now)

	all, err := ListRules(ctx, database, false)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(all) != 3 || all[0].ID != off.ID || all[1].ID != high.ID || all[2].ID != low.ID {
		t.Errorf("expected priority order off, high, low; got %+v", all)
	}

	active, _ := ListRules(ctx, database, true)
	if len(active) != 2 || active[0].ID != high.ID {
		t.Errorf("expected 2 active rules led by 'high', got %+v", active)
	}

	high.IsActive = false
	if err := UpdateRule(ctx, database, *high, now); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if err := DeleteRule(ctx, database, low.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	active, _ = ListRules(ctx, database, true)
	if len(active) != 0 {
		t.Errorf("expected no active rules, got %d", len(active))
	}
}
