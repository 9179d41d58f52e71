package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/transfer"
)

// RulesHandler handles approval rule endpoints.
type RulesHandler struct {
	Service *transfer.Service
}

type ruleRequest struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Conditions     model.RuleConditions `json:"conditions"`
	ApproverRole   string               `json:"approver_role"`
	ApproverUserID *int64               `json:"approver_user_id"`
	Priority       int                  `json:"priority"`
	IsActive       *bool                `json:"is_active"`
}

// rule converts the request; rules are active unless stated otherwise.
func (req ruleRequest) rule() model.ApprovalRule {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return model.ApprovalRule{
		Name:           req.Name,
		Description:    req.Description,
		Conditions:     req.Conditions,
		ApproverRole:   req.ApproverRole,
		ApproverUserID: req.ApproverUserID,
		Priority:       req.Priority,
		IsActive:       active,
	}
}

// List handles GET /api/rules. Pass active=true to skip inactive rules.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	rules, err := h.Service.ListRules(r.Context(), activeOnly)
	if err != nil {
		serviceError(w, err, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []model.ApprovalRule{}
	}
	jsonResponse(w, http.StatusOK, rules)
}

// Create handles POST /api/rules.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.Service.CreateRule(r.Context(), req.rule())
	if err != nil {
		serviceError(w, err, "failed to create rule")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("rule created", "user", claims.Username, "rule", rule.ID, "name", rule.Name)
	jsonResponse(w, http.StatusCreated, rule)
}

// Get handles GET /api/rules/{id}.
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	rule, err := h.Service.GetRule(r.Context(), id)
	if err != nil {
		serviceError(w, err, "failed to get rule")
		return
	}
	jsonResponse(w, http.StatusOK, rule)
}

// Update handles PUT /api/rules/{id}.
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.Service.UpdateRule(r.Context(), id, req.rule())
	if err != nil {
		serviceError(w, err, "failed to update rule")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("rule updated", "user", claims.Username, "rule", id)
	jsonResponse(w, http.StatusOK, rule)
}

// Delete handles DELETE /api/rules/{id}.
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	if err := h.Service.DeleteRule(r.Context(), id); err != nil {
		serviceError(w, err, "failed to delete rule")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("rule deleted", "user", claims.Username, "rule", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "rule deleted"})
}
