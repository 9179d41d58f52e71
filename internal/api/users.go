package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

// UsersHandler administers accounts. Roles decide who may manage assets and
// rules and who falls back to approving transfers no rule covers.
type UsersHandler struct {
	DB *sql.DB
}

type accountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// accountResponse is a user with the transfers they requested that have not
// run yet.
type accountResponse struct {
	model.User
	OpenTransfers int `json:"open_transfers"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list accounts", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "role must be admin, manager or user")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Username, hash, req.Role)
	if err != nil {
		jsonError(w, http.StatusConflict, fmt.Sprintf("account %q already exists", req.Username))
		return
	}

	slog.Info("account created", "by", GetClaims(r.Context()).Username, "account", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.account(w, r)
	if !ok {
		return
	}

	open, err := openTransfers(r.Context(), h.DB, user.ID)
	if err != nil {
		slog.Error("failed to count open transfers", "account", user.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	jsonResponse(w, http.StatusOK, accountResponse{User: *user, OpenTransfers: open})
}

// Update handles PUT /api/users/{id}. It changes the role only; the new role
// applies to the account's current sessions on their next request.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "role must be admin, manager or user")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot change your own role")
		return
	}

	if err := store.UpdateUserRole(r.Context(), h.DB, id, req.Role); err != nil {
		jsonError(w, http.StatusNotFound, "account not found")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil || user == nil {
		slog.Error("failed to reload account", "account", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	slog.Info("role changed", "by", claims.Username, "account", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.UpdateUserPassword(r.Context(), h.DB, id, hash); err != nil {
		jsonError(w, http.StatusNotFound, "account not found")
		return
	}

	slog.Info("password reset", "by", GetClaims(r.Context()).Username, "account", accountLabel(r.Context(), h.DB, id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}. The account is soft-deleted: its
// history stays attributed and its open transfers stay in place, so approved
// scheduled transfers still run and pending ones can still be decided.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	label := accountLabel(r.Context(), h.DB, id)
	open, err := openTransfers(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to count open transfers", "account", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		jsonError(w, http.StatusNotFound, "account not found")
		return
	}

	slog.Info("account deleted", "by", claims.Username, "account", label, "open_transfers", open)
	jsonResponse(w, http.StatusOK, map[string]any{"message": "account deleted", "open_transfers": open})
}

func (h *UsersHandler) account(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid account id")
		return nil, false
	}
	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get account", "account", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get account")
		return nil, false
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "account not found")
		return nil, false
	}
	return user, true
}

// openTransfers counts the pending and approved transfers userID requested.
func openTransfers(ctx context.Context, q store.Querier, userID int64) (int, error) {
	total := 0
	for _, status := range []model.TransferStatus{model.StatusPending, model.StatusApproved} {
		_, n, err := store.ListTransfers(ctx, q, model.TransferFilter{
			Status: status, RequestedBy: userID, Limit: 1,
		})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func accountLabel(ctx context.Context, q store.Querier, id int64) string {
	if u, _ := store.GetUser(ctx, q, id); u != nil {
		return u.Username
	}
	return fmt.Sprintf("id:%d", id)
}
