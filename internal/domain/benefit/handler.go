package benefit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civicrewards/rewards-api/internal/domain/user"
	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/middleware"
	"github.com/civicrewards/rewards-api/internal/pkg/errorhandler"
	"github.com/civicrewards/rewards-api/internal/pkg/response"
	"github.com/civicrewards/rewards-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

type scanRequest struct {
	QRCode string `json:"qr_code" validate:"required,notblank,max=128"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET /benefits
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCatalog(r.Context())
	if err != nil {
		h.writeError(w, r, "benefit.list", err)
		return
	}
	response.OK(w, items)
}

// Get handles GET /benefits/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid benefit id")
		return
	}

	b, err := h.svc.GetBenefit(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "benefit.get", err)
		return
	}
	response.OK(w, b)
}

// Redeem handles POST /benefits/{id}/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid benefit id")
		return
	}

	result, err := h.svc.Redeem(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, "benefit.redeem", err)
		return
	}
	response.Created(w, result)
}

// ListRedemptions handles GET /redemptions
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.svc.ListUserRedemptions(r.Context(), userID, page, limit)
	if err != nil {
		h.writeError(w, r, "benefit.list_redemptions", err)
		return
	}
	response.WithMeta(w, result.Items, response.NewMeta(result.Total, result.Page, result.Limit))
}

// GetRedemption handles GET /redemptions/{id}
func (h *Handler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid redemption id")
		return
	}

	red, err := h.svc.GetUserRedemption(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, r, "benefit.get_redemption", err)
		return
	}
	response.OK(w, red)
}

// Scan handles POST /merchant/redemptions/scan
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	merchantID := middleware.GetUserID(r.Context())
	if merchantID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req scanRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if fieldErrors := validator.Validate(&req); fieldErrors != nil {
		errorhandler.LogValidationError(r.Context(), fieldErrors)
		response.ValidationError(w, fieldErrors)
		return
	}

	result, err := h.svc.ScanAndRedeem(r.Context(), req.QRCode, merchantID)
	if err != nil {
		h.writeError(w, r, "benefit.scan", err)
		return
	}
	response.OK(w, result)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, ErrBenefitNotFound):
		response.NotFound(w, "benefit not found")
	case errors.Is(err, ErrRedemptionNotFound):
		response.NotFound(w, "redemption not found")
	case errors.Is(err, wallet.ErrWalletNotFound):
		response.NotFound(w, "wallet not found")
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, "user not found")
	case errors.Is(err, ErrBenefitInactive):
		response.Unprocessable(w, "BENEFIT_INACTIVE", "benefit is not active")
	case errors.Is(err, ErrInsufficientStock):
		response.Conflict(w, "INSUFFICIENT_STOCK", "benefit is out of stock")
	case errors.Is(err, wallet.ErrInsufficientBalance):
		response.Conflict(w, "INSUFFICIENT_BALANCE", "insufficient balance")
	case errors.Is(err, ErrAlreadyRedeemed):
		response.Conflict(w, "ALREADY_REDEEMED", "redemption was already used")
	case errors.Is(err, ErrExpired):
		response.Gone(w, "EXPIRED", "redemption has expired")
	case errors.Is(err, ErrConcurrencyConflict):
		response.Conflict(w, "CONCURRENCY_CONFLICT", "benefit changed concurrently, re-read and try again")
	default:
		errorhandler.HandleInternal(r.Context(), w, operation, err)
	}
}

// Routes returns the citizen catalog router, mounted under /benefits.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/redeem", h.Redeem)
	return r
}

// RedemptionRoutes is mounted under /redemptions.
func (h *Handler) RedemptionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRedemptions)
	r.Get("/{id}", h.GetRedemption)
	return r
}

// MerchantRoutes is mounted under /merchant/redemptions.
func (h *Handler) MerchantRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/scan", h.Scan)
	return r
}
