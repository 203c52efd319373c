package controller

import (
	"net/http"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/providers"
	"github.com/dancingpatinacao/checkout/internal/service"
)

// PagBankController handles PagBank hosted checkout, PIX orders and
// notifications. PagSeguro notifications land on the same handler.
type PagBankController struct {
	checkout *service.CheckoutService
	webhooks *service.WebhookService
}

func NewPagBankController(checkoutService *service.CheckoutService, webhookService *service.WebhookService) *PagBankController {
	return &PagBankController{checkout: checkoutService, webhooks: webhookService}
}

// Checkout handles POST /api/pagbank/checkout and /api/pagbank/create-payment
func (h *PagBankController) Checkout(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, string(checkout.ProviderPagBank))
}

// CreateOrder handles POST /api/pagbank/create-order (PIX)
func (h *PagBankController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, providers.PagBankPixName)
}

func (h *PagBankController) create(w http.ResponseWriter, r *http.Request, provider string) {
	var req PagBankRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	booking, err := req.ToBooking()
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.checkout.CreateCheckout(r.Context(), provider, booking)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PagBankResponse{
		Success:    true,
		OrderID:    result.ProviderOrderID,
		PaymentURL: result.RedirectURL,
		QRCode:     result.QRCode,
	})
}

// PaymentStatus handles GET /api/pagbank/payment-status?orderId=
func (h *PagBankController) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := firstQuery(r, "orderId", "order_id", "id")
	if id == "" {
		writeError(w, domainErrors.NewValidationError("orderId", "is required"))
		return
	}

	st, err := h.checkout.Status(r.Context(), string(checkout.ProviderPagBank), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

// Webhook handles POST /api/pagbank/webhook and /api/pagseguro/webhook
func (h *PagBankController) Webhook(w http.ResponseWriter, r *http.Request) {
	receiveWebhook(h.webhooks, string(checkout.ProviderPagBank), w, r)
}
