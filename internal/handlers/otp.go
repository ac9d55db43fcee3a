package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/pkg/response"
)

// OTPHandler exposes the phone verification endpoint.
type OTPHandler struct {
	otp *services.OTPService
}

// NewOTPHandler builds the OTP endpoint.
func NewOTPHandler(otp *services.OTPService) *OTPHandler {
	return &OTPHandler{otp: otp}
}

type requestOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,numeric,min=7,max=20"`
}

// Request handles POST /otp. The code itself never appears in the
// response; it only travels over the delivery channel.
func (h *OTPHandler) Request(c *gin.Context) {
	var req requestOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	otp, err := h.otp.Request(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, otp)
}
