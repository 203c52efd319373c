package controller

import (
	"net/http"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/service"
)

type StripeController struct {
	checkout *service.CheckoutService
}

func NewStripeController(checkoutService *service.CheckoutService) *StripeController {
	return &StripeController{checkout: checkoutService}
}

// CreateCheckoutSession handles POST /api/stripe/create-checkout-session
func (h *StripeController) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req BookingDTO
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.checkout.CreateCheckout(r.Context(), string(checkout.ProviderStripe), req.ToBooking())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StripeSessionResponse{
		Success: true,
		ID:      result.ProviderOrderID,
		URL:     result.RedirectURL,
	})
}

// SessionStatus handles GET /api/stripe/session-status?sessionId=
func (h *StripeController) SessionStatus(w http.ResponseWriter, r *http.Request) {
	id := firstQuery(r, "sessionId", "session_id")
	if id == "" {
		writeError(w, domainErrors.NewValidationError("sessionId", "is required"))
		return
	}

	st, err := h.checkout.Status(r.Context(), string(checkout.ProviderStripe), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}
