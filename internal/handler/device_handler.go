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

type DeviceHandler struct {
	deviceService *service.DeviceService
	validate      *validator.Validate
}

func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		validate:      validator.New(),
	}
}

// Register enrolls a device for the authenticated user so its edits can
// be attributed in vector clocks.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	userID := middleware.GetUserID(r)

	device, err := h.deviceService.Register(userID, &req)
	if err != nil {
		response.InternalError(w, "Failed to register device")
		return
	}

	response.Created(w, device)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	devices, err := h.deviceService.List(userID)
	if err != nil {
		response.InternalError(w, "Failed to list devices")
		return
	}

	response.Success(w, devices)
}

func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]
	if deviceID == "" {
		response.BadRequest(w, "Device ID is required")
		return
	}

	userID := middleware.GetUserID(r)

	if err := h.deviceService.Revoke(userID, deviceID); err != nil {
		if errors.Is(err, service.ErrAccessDenied) {
			response.Forbidden(w, "Device does not belong to user")
			return
		}
		response.InternalError(w, "Failed to revoke device")
		return
	}

	response.SuccessWithMessage(w, "Device revoked", nil)
}
