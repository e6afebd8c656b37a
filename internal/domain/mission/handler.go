package mission

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/middleware"
	"github.com/civicrewards/rewards-api/internal/pkg/errorhandler"
	"github.com/civicrewards/rewards-api/internal/pkg/response"
	"github.com/civicrewards/rewards-api/internal/pkg/storage"
	"github.com/civicrewards/rewards-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createSubmissionRequest struct {
	EvidenceURL string `json:"evidence_url" validate:"required,url,max=2048"`
	Description string `json:"description" validate:"max=2000"`
}

type evidenceRequest struct {
	ContentType string `json:"content_type" validate:"required,evidence_mime"`
}

type approveRequest struct {
	Observation *string `json:"observation" validate:"omitempty,max=2000"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=2000"`
}

// List handles GET /missions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	views, err := h.svc.ListMissions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "mission.list", err)
		return
	}
	response.OK(w, views)
}

// RequestEvidence handles POST /missions/{id}/evidence
func (h *Handler) RequestEvidence(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	missionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid mission id")
		return
	}

	var req evidenceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	upload, err := h.svc.RequestEvidenceUpload(r.Context(), userID, missionID, req.ContentType)
	if err != nil {
		h.writeError(w, r, "mission.evidence", err)
		return
	}
	response.Created(w, upload)
}

// Submit handles POST /missions/{id}/submissions
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	missionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid mission id")
		return
	}

	var req createSubmissionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sub, err := h.svc.CreateSubmission(r.Context(), userID, missionID, req.EvidenceURL, req.Description)
	if err != nil {
		h.writeError(w, r, "mission.submit", err)
		return
	}
	response.Created(w, sub)
}

// MySubmissions handles GET /submissions
func (h *Handler) MySubmissions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page, limit := pagination(r)
	result, err := h.svc.ListUserSubmissions(r.Context(), userID, page, limit)
	if err != nil {
		h.writeError(w, r, "mission.my_submissions", err)
		return
	}
	response.WithMeta(w, result.Items, response.NewMeta(result.Total, result.Page, result.Limit))
}

// Pending handles GET /admin/submissions
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	result, err := h.svc.ListPendingSubmissions(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, r, "mission.pending", err)
		return
	}
	response.WithMeta(w, result.Items, response.NewMeta(result.Total, result.Page, result.Limit))
}

// Approve handles POST /admin/submissions/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	if adminID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid submission id")
		return
	}

	var req approveRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.ApproveSubmission(r.Context(), id, adminID, req.Observation)
	if err != nil {
		h.writeError(w, r, "mission.approve", err)
		return
	}
	response.OK(w, result)
}

// Reject handles POST /admin/submissions/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID := middleware.GetUserID(r.Context())
	if adminID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid submission id")
		return
	}

	var req rejectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sub, err := h.svc.RejectSubmission(r.Context(), id, adminID, req.Reason)
	if err != nil {
		h.writeError(w, r, "mission.reject", err)
		return
	}
	response.OK(w, sub)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := response.DecodeJSON(r.Body, dst); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return false
	}
	if fieldErrors := validator.Validate(dst); fieldErrors != nil {
		errorhandler.LogValidationError(r.Context(), fieldErrors)
		response.ValidationError(w, fieldErrors)
		return false
	}
	return true
}

func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var cooldown *CooldownError
	switch {
	case errors.As(err, &cooldown):
		details := map[string]string{"remaining_days": strconv.Itoa(cooldown.RemainingDays)}
		if cooldown.Until != nil {
			details["cooldown_until"] = cooldown.Until.UTC().Format(time.RFC3339)
		}
		if cooldown.Permanent {
			details["permanent"] = "true"
		}
		response.ErrorWithDetails(w, http.StatusConflict, "COOLDOWN_ACTIVE", cooldown.Error(), details)
	case errors.Is(err, ErrMissionNotFound):
		response.NotFound(w, "mission not found")
	case errors.Is(err, ErrSubmissionNotFound):
		response.NotFound(w, "submission not found")
	case errors.Is(err, wallet.ErrWalletNotFound):
		response.NotFound(w, "wallet not found")
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrMissionInactive):
		response.Unprocessable(w, "MISSION_INACTIVE", "mission is not active")
	case errors.Is(err, ErrDuplicatePending):
		response.Conflict(w, "DUPLICATE_PENDING", "a submission for this mission is already pending review")
	case errors.Is(err, ErrAlreadyProcessed):
		response.Conflict(w, "ALREADY_PROCESSED", "submission was already processed")
	case errors.Is(err, wallet.ErrConcurrencyConflict):
		response.Conflict(w, "CONCURRENCY_CONFLICT", "wallet changed concurrently, re-read and try again")
	case errors.Is(err, storage.ErrNotConfigured):
		response.ServiceUnavailable(w, "evidence uploads are not available")
	default:
		errorhandler.HandleInternal(r.Context(), w, operation, err)
	}
}

// Routes is mounted under /missions.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/{id}/evidence", h.RequestEvidence)
	r.Post("/{id}/submissions", h.Submit)
	return r
}

// SubmissionRoutes is mounted under /submissions.
func (h *Handler) SubmissionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.MySubmissions)
	return r
}

// AdminRoutes is mounted under /admin/submissions.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Pending)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/reject", h.Reject)
	return r
}
