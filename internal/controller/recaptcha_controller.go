package controller

import (
	"errors"
	"net"
	"net/http"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/service"
)

type RecaptchaController struct {
	recaptcha *service.RecaptchaService
}

func NewRecaptchaController(recaptchaService *service.RecaptchaService) *RecaptchaController {
	return &RecaptchaController{recaptcha: recaptchaService}
}

// Verify handles POST /api/test-recaptcha
func (h *RecaptchaController) Verify(w http.ResponseWriter, r *http.Request) {
	var req RecaptchaRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.recaptcha.Verify(r.Context(), req.RecaptchaToken, clientIP(r))
	if errors.Is(err, domainErrors.ErrRecaptchaVerifyFailed) && result != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   err.Error(),
			Code:    "recaptcha_failed",
			Details: result,
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RecaptchaResponse{Success: true, Details: result})
}

// clientIP relies on RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
