package transfer

import (
	"context"
	"strings"

	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// CreateRule validates and stores a new approval rule.
func (s *Service) CreateRule(ctx context.Context, r model.ApprovalRule) (*model.ApprovalRule, error) {
	if err := s.validateRule(ctx, &r); err != nil {
		return nil, err
	}
	created, err := store.CreateRule(ctx, s.db, r, s.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("approval rule created", "rule", created.ID, "name", created.Name)
	return created, nil
}

// GetRule returns an approval rule by ID.
func (s *Service) GetRule(ctx context.Context, id int64) (*model.ApprovalRule, error) {
	r, err := store.GetRule(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, newError(ErrNotFound, "approval rule %d not found", id)
	}
	return r, nil
}

// UpdateRule replaces the editable fields of rule id with those of r.
func (s *Service) UpdateRule(ctx context.Context, id int64, r model.ApprovalRule) (*model.ApprovalRule, error) {
	if _, err := s.GetRule(ctx, id); err != nil {
		return nil, err
	}
	if err := s.validateRule(ctx, &r); err != nil {
		return nil, err
	}

	r.ID = id
	if err := store.UpdateRule(ctx, s.db, r, s.Now()); err != nil {
		return nil, err
	}
	s.logger.Info("approval rule updated", "rule", id)
	return s.GetRule(ctx, id)
}

// DeleteRule removes an approval rule.
func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	if _, err := s.GetRule(ctx, id); err != nil {
		return err
	}
	if err := store.DeleteRule(ctx, s.db, id); err != nil {
		return err
	}
	s.logger.Info("approval rule deleted", "rule", id)
	return nil
}

// ListRules returns approval rules, highest priority first.
func (s *Service) ListRules(ctx context.Context, activeOnly bool) ([]model.ApprovalRule, error) {
	return store.ListRules(ctx, s.db, activeOnly)
}

func (s *Service) validateRule(ctx context.Context, r *model.ApprovalRule) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return newError(ErrValidation, "rule name is required")
	}

	c := r.Conditions
	if c.MinValue.Valid && c.MinValue.Decimal.IsNegative() {
		return newError(ErrValidation, "min value cannot be negative")
	}
	if c.MinValue.Valid && c.MaxValue.Valid && c.MinValue.Decimal.GreaterThan(c.MaxValue.Decimal) {
		return newError(ErrValidation, "min value cannot exceed max value")
	}

	if r.ApproverRole == "" && r.ApproverUserID == nil {
		return newError(ErrValidation, "an approver role or approver user is required")
	}
	if r.ApproverRole != "" && !model.ValidRole(r.ApproverRole) {
		return newError(ErrValidation, "invalid approver role %q", r.ApproverRole)
	}
	if r.ApproverUserID != nil {
		u, err := store.GetActiveUser(ctx, s.db, *r.ApproverUserID)
		if err != nil {
			return err
		}
		if u == nil {
			return newError(ErrNotFound, "user %d not found", *r.ApproverUserID)
		}
	}
	return nil
}
