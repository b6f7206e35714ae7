package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ledger-sync-server/internal/domain"
	"ledger-sync-server/internal/middleware"
	"ledger-sync-server/internal/service"
	"ledger-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type TransactionHandler struct {
	txService    *service.TransactionService
	revalService *service.RevaluationService
	validate     *validator.Validate
}

func NewTransactionHandler(txService *service.TransactionService, revalService *service.RevaluationService) *TransactionHandler {
	return &TransactionHandler{
		txService:    txService,
		revalService: revalService,
		validate:     validator.New(),
	}
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	tx, err := h.txService.Create(userID, &req)
	if err != nil {
		response.InternalError(w, "Failed to create transaction")
		return
	}

	response.Created(w, tx)
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.txService.List(userID, page, limit)
	if err != nil {
		response.InternalError(w, "Failed to list transactions")
		return
	}

	response.Success(w, list)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	txID := mux.Vars(r)["id"]

	tx, err := h.txService.Get(userID, txID)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			response.NotFound(w, "Transaction not found")
			return
		}
		response.InternalError(w, "Failed to load transaction")
		return
	}

	response.Success(w, tx)
}

func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	txID := mux.Vars(r)["id"]

	var req domain.UpdateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	tx, err := h.txService.Update(userID, txID, &req)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			response.NotFound(w, "Transaction not found")
			return
		}
		response.InternalError(w, "Failed to update transaction")
		return
	}

	response.Success(w, tx)
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	txID := mux.Vars(r)["id"]

	if err := h.txService.Delete(userID, txID); err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			response.NotFound(w, "Transaction not found")
			return
		}
		response.InternalError(w, "Failed to delete transaction")
		return
	}

	response.SuccessWithMessage(w, "Transaction deleted", nil)
}

// Revalue kicks off a background recomputation of converted amounts and
// returns the pending job immediately; progress is polled via RevalueStatus.
func (h *TransactionHandler) Revalue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.RevaluationRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	job, err := h.revalService.StartJob(userID, &req)
	if err != nil {
		if errors.Is(err, service.ErrJobAlreadyActive) {
			response.Error(w, http.StatusConflict, err.Error())
			return
		}
		response.InternalError(w, "Failed to start revaluation job")
		return
	}

	response.Success(w, &domain.RevaluationJobResponse{
		Success: true,
		Message: "Revaluation job started in background",
		Job:     job,
	})
}

func (h *TransactionHandler) RevalueStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	jobID := mux.Vars(r)["jobId"]

	job, err := h.revalService.GetJobStatus(jobID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			response.NotFound(w, "Revaluation job not found")
		case errors.Is(err, service.ErrAccessDenied):
			response.Forbidden(w, "Access denied")
		default:
			response.InternalError(w, "Failed to load job status")
		}
		return
	}

	response.Success(w, job)
}

func (h *TransactionHandler) RevaluationHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	txID := mux.Vars(r)["id"]

	history, err := h.txService.RevaluationHistory(userID, txID)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			response.NotFound(w, "Transaction not found")
			return
		}
		response.InternalError(w, "Failed to load revaluation history")
		return
	}

	response.Success(w, history)
}
