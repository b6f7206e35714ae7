package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger-sync-server/internal/domain"
	"ledger-sync-server/internal/middleware"
	"ledger-sync-server/internal/service"
	"ledger-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type SyncHandler struct {
	conflictService *service.ConflictService
	validate        *validator.Validate
}

func NewSyncHandler(conflictService *service.ConflictService) *SyncHandler {
	return &SyncHandler{
		conflictService: conflictService,
		validate:        validator.New(),
	}
}

// SubmitEdit ingests one device edit. Causally newer edits are applied,
// stale ones rejected with 409, concurrent ones captured as a conflict.
func (h *SyncHandler) SubmitEdit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.SyncEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.conflictService.DetectEdit(&domain.SyncEdit{
		EntityID:    req.EntityID,
		EntityType:  req.EntityType,
		OwnerID:     userID,
		DeviceID:    req.DeviceID,
		State:       req.State,
		VectorClock: req.VectorClock,
	})
	if err != nil {
		if errors.Is(err, service.ErrStaleEdit) {
			response.Error(w, http.StatusConflict, "Edit is causally older than the stored state")
			return
		}
		response.InternalError(w, "Failed to process edit")
		return
	}

	response.Success(w, res)
}

func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	status := domain.ConflictStatus(r.URL.Query().Get("status"))

	conflicts, err := h.conflictService.ListByOwner(userID, status)
	if err != nil {
		response.InternalError(w, "Failed to list conflicts")
		return
	}

	response.Success(w, conflicts)
}

func (h *SyncHandler) GetConflict(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	conflictID := mux.Vars(r)["id"]

	conflict, err := h.conflictService.Get(conflictID)
	if err != nil {
		if errors.Is(err, service.ErrConflictNotFound) {
			response.NotFound(w, "Conflict not found")
			return
		}
		response.InternalError(w, "Failed to load conflict")
		return
	}

	if conflict.OwnerID != userID {
		response.Forbidden(w, "Access denied")
		return
	}

	response.Success(w, conflict)
}

func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}
	conflictID := mux.Vars(r)["id"]

	var req domain.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	conflict, err := h.conflictService.Get(conflictID)
	if err != nil {
		if errors.Is(err, service.ErrConflictNotFound) {
			response.NotFound(w, "Conflict not found")
			return
		}
		response.InternalError(w, "Failed to load conflict")
		return
	}

	if conflict.OwnerID != userID {
		response.Forbidden(w, "Access denied")
		return
	}

	resolved, err := h.conflictService.Resolve(conflictID, req.Strategy, req.ManualState)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyResolved):
			response.Error(w, http.StatusConflict, "Conflict is already resolved")
		case errors.Is(err, service.ErrNoSourceDevice),
			errors.Is(err, service.ErrManualStateRequired):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to resolve conflict")
		}
		return
	}

	response.SuccessWithMessage(w, "conflict resolved", resolved)
}
