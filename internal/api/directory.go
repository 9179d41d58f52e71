package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// DirectoryHandler handles the departments, locations and categories that
// transfers and approval rules refer to.
type DirectoryHandler struct {
	DB *sql.DB
}

type createNamedRequest struct {
	Name string `json:"name"`
}

// ListDepartments handles GET /api/departments.
func (h *DirectoryHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := store.ListDepartments(r.Context(), h.DB)
	listNamed(w, "departments", depts, []model.Department{}, err)
}

// CreateDepartment handles POST /api/departments.
func (h *DirectoryHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, "department", func(ctx context.Context, name string) (any, error) {
		return store.CreateDepartment(ctx, h.DB, name)
	})
}

// ListLocations handles GET /api/locations.
func (h *DirectoryHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := store.ListLocations(r.Context(), h.DB)
	listNamed(w, "locations", locs, []model.Location{}, err)
}

// CreateLocation handles POST /api/locations.
func (h *DirectoryHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, "location", func(ctx context.Context, name string) (any, error) {
		return store.CreateLocation(ctx, h.DB, name)
	})
}

// ListCategories handles GET /api/categories.
func (h *DirectoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := store.ListCategories(r.Context(), h.DB)
	listNamed(w, "categories", cats, []model.Category{}, err)
}

// CreateCategory handles POST /api/categories.
func (h *DirectoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, "category", func(ctx context.Context, name string) (any, error) {
		return store.CreateCategory(ctx, h.DB, name)
	})
}

func (h *DirectoryHandler) create(w http.ResponseWriter, r *http.Request, kind string, fn func(context.Context, string) (any, error)) {
	var req createNamedRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	created, err := fn(r.Context(), name)
	if err != nil {
		jsonError(w, http.StatusConflict, kind+" already exists")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info(kind+" created", "user", claims.Username, "name", name)
	jsonResponse(w, http.StatusCreated, created)
}

func listNamed[T any](w http.ResponseWriter, what string, list, empty []T, err error) {
	if err != nil {
		slog.Error("failed to list "+what, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list "+what)
		return
	}
	if list == nil {
		list = empty
	}
	jsonResponse(w, http.StatusOK, list)
}
