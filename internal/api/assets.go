package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// AssetsHandler handles asset endpoints. Assignments only change through
// transfers; these endpoints register assets and read their history.
type AssetsHandler struct {
	DB *sql.DB
}

type createAssetRequest struct {
	Name         string          `json:"name"`
	CategoryID   *int64          `json:"category_id"`
	Value        decimal.Decimal `json:"value"`
	UserID       *int64          `json:"user_id"`
	DepartmentID *int64          `json:"department_id"`
	LocationID   *int64          `json:"location_id"`
}

type updateAssetStatusRequest struct {
	Status string `json:"status"`
}

// List handles GET /api/assets.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	assets, err := store.ListAssets(r.Context(), h.DB, status)
	if err != nil {
		slog.Error("failed to list assets", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	jsonResponse(w, http.StatusOK, assets)
}

// Create handles POST /api/assets.
func (h *AssetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Value.IsNegative() {
		jsonError(w, http.StatusBadRequest, "value must not be negative")
		return
	}

	asset, err := store.CreateAsset(r.Context(), h.DB, model.Asset{
		Name:         req.Name,
		CategoryID:   req.CategoryID,
		Value:        req.Value,
		UserID:       req.UserID,
		DepartmentID: req.DepartmentID,
		LocationID:   req.LocationID,
	})
	if err != nil {
		// Unknown category, user, department or location.
		jsonError(w, http.StatusBadRequest, "failed to create asset")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("asset created", "user", claims.Username, "asset", asset.ID, "name", asset.Name)
	jsonResponse(w, http.StatusCreated, asset)
}

// Get handles GET /api/assets/{id}.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := store.GetAsset(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get asset", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get asset")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "asset not found")
		return
	}

	jsonResponse(w, http.StatusOK, asset)
}

// UpdateStatus handles PUT /api/assets/{id}/status.
func (h *AssetsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	var req updateAssetStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Status {
	case model.AssetStatusActive, model.AssetStatusMaintenance, model.AssetStatusRetired:
	default:
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	asset, err := store.GetAsset(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get asset", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get asset")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "asset not found")
		return
	}

	if err := store.SetAssetStatus(r.Context(), h.DB, id, req.Status); err != nil {
		slog.Error("failed to update asset status", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update asset")
		return
	}
	asset.Status = req.Status

	claims := GetClaims(r.Context())
	slog.Info("asset status changed", "user", claims.Username, "asset", id, "status", req.Status)
	jsonResponse(w, http.StatusOK, asset)
}

// GetHistory handles GET /api/assets/{id}/history.
func (h *AssetsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := store.GetAsset(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get asset", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get asset")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "asset not found")
		return
	}

	history, err := store.GetAssetHistory(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get asset history", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get history")
		return
	}
	if history == nil {
		history = []model.AssetHistory{}
	}
	jsonResponse(w, http.StatusOK, history)
}
