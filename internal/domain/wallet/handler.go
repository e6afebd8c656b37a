package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civicrewards/rewards-api/internal/middleware"
	"github.com/civicrewards/rewards-api/internal/pkg/errorhandler"
	"github.com/civicrewards/rewards-api/internal/pkg/response"
	"github.com/civicrewards/rewards-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

type creditRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,notblank,max=255"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance handles GET /wallet
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	balance, err := h.svc.GetBalance(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, "wallet.balance", err)
		return
	}

	response.OK(w, balance)
}

// Transactions handles GET /wallet/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.svc.GetTransactionHistory(r.Context(), userID, page, limit)
	if err != nil {
		h.writeError(w, r, "wallet.transactions", err)
		return
	}

	response.WithMeta(w, history.Items, response.NewMeta(history.Total, history.Page, history.Limit))
}

// Credit handles POST /admin/wallets/{userID}/credit
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	var req creditRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(&req); fieldErrors != nil {
		errorhandler.LogValidationError(r.Context(), fieldErrors)
		response.ValidationError(w, fieldErrors)
		return
	}

	receipt, err := h.svc.CreditPoints(r.Context(), userID, req.Amount, req.Description, adminID)
	if err != nil {
		h.writeError(w, r, "wallet.credit", err)
		return
	}

	response.Created(w, receipt)
}

// Reconcile handles GET /admin/wallets/{userID}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		response.BadRequest(w, "invalid user id")
		return
	}

	rec, err := h.svc.Reconcile(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "wallet.reconcile", err)
		return
	}

	response.OK(w, rec)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		response.NotFound(w, "wallet not found")
	case errors.Is(err, ErrInvalidAmount):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrInsufficientBalance):
		response.Conflict(w, "INSUFFICIENT_BALANCE", "insufficient balance")
	case errors.Is(err, ErrConcurrencyConflict):
		response.Conflict(w, "CONCURRENCY_CONFLICT", "wallet changed concurrently, re-read and try again")
	default:
		errorhandler.HandleInternal(r.Context(), w, operation, err)
	}
}

// Routes returns the citizen wallet router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Balance)
	r.Get("/transactions", h.Transactions)
	return r
}

// AdminRoutes returns the admin wallet router, mounted under /admin/wallets.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{userID}/credit", h.Credit)
	r.Get("/{userID}/reconcile", h.Reconcile)
	return r
}
