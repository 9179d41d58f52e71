package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/transfer"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	Service *transfer.Service
}

type approveRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type listTransfersResponse struct {
	Transfers []model.Transfer `json:"transfers"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	Limit     int              `json:"limit"`
}

// Create handles POST /api/transfers.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req transfer.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Service.Create(r.Context(), req, claims.UserID)
	if err != nil {
		serviceError(w, err, "failed to create transfer")
		return
	}

	slog.Info("transfer created", "user", claims.Username, "transfer", t.ID,
		"type", t.Type, "assets", len(t.AssetIDs), "status", t.Status)
	jsonResponse(w, http.StatusCreated, t)
}

// List handles GET /api/transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseTransferFilter(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	transfers, total, err := h.Service.List(r.Context(), f)
	if err != nil {
		serviceError(w, err, "failed to list transfers")
		return
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	jsonResponse(w, http.StatusOK, listTransfersResponse{
		Transfers: transfers,
		Total:     total,
		Page:      f.Page,
		Limit:     f.Limit,
	})
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	t, err := h.Service.Get(r.Context(), id)
	if err != nil {
		serviceError(w, err, "failed to get transfer")
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Pending handles GET /api/transfers/pending.
func (h *TransfersHandler) Pending(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	transfers, err := h.Service.ListPendingApprovalsFor(r.Context(), claims.UserID)
	if err != nil {
		serviceError(w, err, "failed to list pending approvals")
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Approve handles POST /api/transfers/{id}/approve.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	var req approveRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Service.Approve(r.Context(), id, claims.UserID, req.Notes)
	if err != nil {
		serviceError(w, err, "failed to approve transfer")
		return
	}

	slog.Info("transfer approved", "user", claims.Username, "transfer", id, "status", t.Status)
	jsonResponse(w, http.StatusOK, t)
}

// Reject handles POST /api/transfers/{id}/reject.
func (h *TransfersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	var req rejectRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Service.Reject(r.Context(), id, claims.UserID, req.Reason)
	if err != nil {
		serviceError(w, err, "failed to reject transfer")
		return
	}

	slog.Info("transfer rejected", "user", claims.Username, "transfer", id)
	jsonResponse(w, http.StatusOK, t)
}

// Cancel handles POST /api/transfers/{id}/cancel.
func (h *TransfersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "cancel", h.Service.Cancel)
}

// Execute handles POST /api/transfers/{id}/execute.
func (h *TransfersHandler) Execute(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "execute", h.Service.Execute)
}

// Undo handles POST /api/transfers/{id}/undo.
func (h *TransfersHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "undo", h.Service.Undo)
}

type transferAction func(ctx context.Context, id, actorID int64) (*model.Transfer, error)

func (h *TransfersHandler) act(w http.ResponseWriter, r *http.Request, verb string, fn transferAction) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	claims := GetClaims(r.Context())
	t, err := fn(r.Context(), id, claims.UserID)
	if err != nil {
		serviceError(w, err, "failed to "+verb+" transfer")
		return
	}

	slog.Info("transfer "+verb, "user", claims.Username, "transfer", id, "status", t.Status)
	jsonResponse(w, http.StatusOK, t)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(r *http.Request, target any) error {
	if err := decodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseTransferFilter(r *http.Request) (model.TransferFilter, error) {
	q := r.URL.Query()
	f := model.TransferFilter{
		Status: model.TransferStatus(q.Get("status")),
		Type:   model.TransferType(q.Get("type")),
		Page:   1,
		Limit:  50,
	}

	if v := q.Get("requested_by"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errors.New("invalid requested_by")
		}
		f.RequestedBy = id
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("invalid page")
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return f, errors.New("invalid limit")
		}
		f.Limit = n
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid " + key + ", expected RFC 3339")
		}
		*dst = &ts
	}
	return f, nil
}
