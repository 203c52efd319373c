package controller

import (
	"net/http"
	"strings"

	"github.com/dancingpatinacao/checkout/internal/service"
)

// CheckoutController exposes every registered provider behind one endpoint.
type CheckoutController struct {
	checkout *service.CheckoutService
}

func NewCheckoutController(checkoutService *service.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkoutService}
}

// Create handles POST /api/checkout
func (h *CheckoutController) Create(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	result, err := h.checkout.CreateCheckout(r.Context(), provider, req.ToBooking())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{
		Success:        true,
		Provider:       string(result.Provider),
		OrderID:        result.ProviderOrderID,
		PaymentURL:     result.RedirectURL,
		QRCode:         result.QRCode,
		IdempotencyKey: result.IdempotencyKey,
	})
}
