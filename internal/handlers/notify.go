package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/pkg/response"
)

// NotifyHandler exposes the notification fan-out endpoint.
type NotifyHandler struct {
	notify *services.NotifyService
}

// NewNotifyHandler builds the notify endpoint.
func NewNotifyHandler(notify *services.NotifyService) *NotifyHandler {
	return &NotifyHandler{notify: notify}
}

type notifyRequest struct {
	UserID  string `json:"userId" validate:"required"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required"`
}

// Send handles POST /notify: delivers a message over the channels the
// target user opted into. Per-channel failures are reported in the result,
// never as an error status.
func (h *NotifyHandler) Send(c *gin.Context) {
	var req notifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	results, err := h.notify.Notify(c.Request.Context(), req.UserID, req.Subject, req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, results)
}
