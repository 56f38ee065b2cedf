package handlers

import (
	"net/http"

	"circle-system/internal/services/creation"

	"github.com/pocketbase/pocketbase/core"
)

// OwnerHandler serves the records a user owns or holds, addressed by hash id.
type OwnerHandler struct {
	creation *creation.Service
}

func NewOwnerHandler(creation *creation.Service) *OwnerHandler {
	return &OwnerHandler{creation: creation}
}

func (h *OwnerHandler) GetApplication(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	detail, err := h.creation.ApplicationByHash(e.Request.Context(), e.Request.PathValue("hashId"), userID)
	if err != nil {
		return toAPIError("OwnerHandler.GetApplication", err)
	}
	return e.JSON(http.StatusOK, detail)
}

func (h *OwnerHandler) GetTicket(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	detail, err := h.creation.TicketByHash(e.Request.Context(), e.Request.PathValue("hashId"), userID)
	if err != nil {
		return toAPIError("OwnerHandler.GetTicket", err)
	}
	return e.JSON(http.StatusOK, detail)
}

// ClaimTicket binds a distributed ticket to the caller.
func (h *OwnerHandler) ClaimTicket(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	holder, err := h.creation.ClaimTicket(e.Request.Context(), e.Request.PathValue("hashId"), userID)
	if err != nil {
		return toAPIError("OwnerHandler.ClaimTicket", err)
	}
	return e.JSON(http.StatusOK, holder)
}
