/*
handlers.go - HTTP API handlers for the points ledger

PURPOSE:
  Exposes the ledger engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates every decision to the engine.

ENDPOINTS:
  Service:
    POST   /api/service                               Register the authorized service

  Users:
    POST   /api/users                                 Initialize a ledger account
    GET    /api/users/{id}                            Account details and balances
    GET    /api/users/{id}/transactions               Transaction history
    POST   /api/users/{id}/points                     Credit points
    POST   /api/users/{id}/redemptions                Open a redemption request
    POST   /api/users/{id}/redemptions/{txID}/status  Approve or decline

  Platform:
    GET    /api/redemptions/pending                   Operator worklist
    GET    /api/analytics                             Platform aggregates

CALLER IDENTITY:
  The caller principal arrives in the X-Caller-Principal header. Verifying
  that identity (mTLS, signatures, gateway auth) is the transport's job;
  the engine only decides whether the principal is authorized.

ERROR HANDLING:
  Engine errors map onto HTTP status via the ledger taxonomy:
  - 400: InvalidPayload (bad amount, insufficient balance, bad transition)
  - 401: Unauthorized
  - 404: NotFound
  - 409: Conflict

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/points-ledger/ledger"
)

const callerHeader = "X-Caller-Principal"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	Log    *slog.Logger
}

// NewHandler creates a new handler around the given engine.
func NewHandler(engine *ledger.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Engine: engine, Log: log}
}

func caller(r *http.Request) ledger.Principal {
	return ledger.Principal(r.Header.Get(callerHeader))
}

// =============================================================================
// SERVICE HANDLERS
// =============================================================================

// RegisterService performs the one-time service bootstrap.
func (h *Handler) RegisterService(w http.ResponseWriter, r *http.Request) {
	var req RegisterServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "service_id is required", nil)
		return
	}

	svc, err := h.Engine.RegisterService(r.Context(), caller(r), ledger.Principal(req.ServiceID))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Log.Info("service registered", "service_id", svc.ID)
	writeJSON(w, http.StatusCreated, toServiceDTO(svc))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser initializes a zero-balance account.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	user, err := h.Engine.InitializeUser(r.Context(), caller(r), ledger.Principal(req.UserID))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetUser returns a single account.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := ledger.Principal(chi.URLParam(r, "id"))

	user, err := h.Engine.GetUser(r.Context(), caller(r), userID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// GetTransactions returns a user's transaction history.
// An unknown user has an empty history, not a 404.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := ledger.Principal(chi.URLParam(r, "id"))

	txs, err := h.Engine.UserTransactions(r.Context(), caller(r), userID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// AddPoints credits points to a user.
func (h *Handler) AddPoints(w http.ResponseWriter, r *http.Request) {
	userID := ledger.Principal(chi.URLParam(r, "id"))

	var req AddPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := ledger.ParsePoints(req.Amount)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	user, err := h.Engine.AddPoints(r.Context(), caller(r), userID, amount, req.Description)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Log.Info("points added", "user_id", userID, "amount", amount)
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// RequestRedeem opens a pending redemption, pre-booking the debit.
func (h *Handler) RequestRedeem(w http.ResponseWriter, r *http.Request) {
	userID := ledger.Principal(chi.URLParam(r, "id"))

	var req RequestRedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := ledger.ParsePoints(req.Amount)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	tx, err := h.Engine.RequestRedeem(r.Context(), caller(r), userID, amount, req.Address, req.Description)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Log.Info("redeem requested", "user_id", userID, "transaction_id", tx.ID, "amount", amount)
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// UpdateRedeemStatus approves or declines a pending redemption.
func (h *Handler) UpdateRedeemStatus(w http.ResponseWriter, r *http.Request) {
	userID := ledger.Principal(chi.URLParam(r, "id"))
	txID := chi.URLParam(r, "txID")

	var req UpdateRedeemStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tx, err := h.Engine.UpdateRedeemStatus(r.Context(), caller(r), userID, txID,
		ledger.TransactionStatus(req.Status))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	h.Log.Info("redeem resolved", "user_id", userID, "transaction_id", tx.ID, "status", tx.Status)
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// =============================================================================
// PLATFORM HANDLERS
// =============================================================================

// ListPendingRedeems returns every redemption awaiting resolution.
func (h *Handler) ListPendingRedeems(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Engine.PendingRedeemTransactions(r.Context(), caller(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetAnalytics returns the platform-wide aggregates.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.Engine.PlatformAnalytics(r.Context(), caller(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalyticsDTO(analytics))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps the ledger error taxonomy onto HTTP status codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	err = ledger.Normalize(err)

	status := http.StatusBadRequest
	switch {
	case ledger.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsConflict(err):
		status = http.StatusConflict
	}

	h.Log.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, err.Error(), nil)
}
