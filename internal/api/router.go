package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/transfer"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, svc *transfer.Service, tokens *auth.Tokens) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, Tokens: tokens}
	usersHandler := &UsersHandler{DB: db}
	directoryHandler := &DirectoryHandler{DB: db}
	assetsHandler := &AssetsHandler{DB: db}
	transfersHandler := &TransfersHandler{Service: svc}
	rulesHandler := &RulesHandler{Service: svc}

	authMW := AuthMiddleware(tokens, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Directory: read (all roles), write (manager+).
	mux.Handle("GET /api/departments", authMW(http.HandlerFunc(directoryHandler.ListDepartments)))
	mux.Handle("POST /api/departments", authMW(requireManager(http.HandlerFunc(directoryHandler.CreateDepartment))))
	mux.Handle("GET /api/locations", authMW(http.HandlerFunc(directoryHandler.ListLocations)))
	mux.Handle("POST /api/locations", authMW(requireManager(http.HandlerFunc(directoryHandler.CreateLocation))))
	mux.Handle("GET /api/categories", authMW(http.HandlerFunc(directoryHandler.ListCategories)))
	mux.Handle("POST /api/categories", authMW(requireManager(http.HandlerFunc(directoryHandler.CreateCategory))))

	// Assets: read (all roles), write (manager+).
	mux.Handle("GET /api/assets", authMW(http.HandlerFunc(assetsHandler.List)))
	mux.Handle("POST /api/assets", authMW(requireManager(http.HandlerFunc(assetsHandler.Create))))
	mux.Handle("GET /api/assets/{id}", authMW(http.HandlerFunc(assetsHandler.Get)))
	mux.Handle("PUT /api/assets/{id}/status", authMW(requireManager(http.HandlerFunc(assetsHandler.UpdateStatus))))
	mux.Handle("GET /api/assets/{id}/history", authMW(http.HandlerFunc(assetsHandler.GetHistory)))

	// Transfers (all roles; the service checks who may act on which transfer).
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("GET /api/transfers", authMW(http.HandlerFunc(transfersHandler.List)))
	mux.Handle("GET /api/transfers/pending", authMW(http.HandlerFunc(transfersHandler.Pending)))
	mux.Handle("GET /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Get)))
	mux.Handle("POST /api/transfers/{id}/approve", authMW(http.HandlerFunc(transfersHandler.Approve)))
	mux.Handle("POST /api/transfers/{id}/reject", authMW(http.HandlerFunc(transfersHandler.Reject)))
	mux.Handle("POST /api/transfers/{id}/cancel", authMW(http.HandlerFunc(transfersHandler.Cancel)))
	mux.Handle("POST /api/transfers/{id}/execute", authMW(http.HandlerFunc(transfersHandler.Execute)))
	mux.Handle("POST /api/transfers/{id}/undo", authMW(http.HandlerFunc(transfersHandler.Undo)))

	// Approval rules: read (all roles), write (manager+).
	mux.Handle("GET /api/rules", authMW(http.HandlerFunc(rulesHandler.List)))
	mux.Handle("POST /api/rules", authMW(requireManager(http.HandlerFunc(rulesHandler.Create))))
	mux.Handle("GET /api/rules/{id}", authMW(http.HandlerFunc(rulesHandler.Get)))
	mux.Handle("PUT /api/rules/{id}", authMW(requireManager(http.HandlerFunc(rulesHandler.Update))))
	mux.Handle("DELETE /api/rules/{id}", authMW(requireManager(http.HandlerFunc(rulesHandler.Delete))))

	return mux
}
