package controller

import (
	"io"
	"net/http"
	"strings"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/service"
)

// MercadoPagoController handles the Checkout Pro, OAuth and notification
// endpoints of Mercado Pago.
type MercadoPagoController struct {
	checkout *service.CheckoutService
	oauth    *service.OAuthService
	webhooks *service.WebhookService
}

func NewMercadoPagoController(
	checkoutService *service.CheckoutService,
	oauthService *service.OAuthService,
	webhookService *service.WebhookService,
) *MercadoPagoController {
	return &MercadoPagoController{
		checkout: checkoutService,
		oauth:    oauthService,
		webhooks: webhookService,
	}
}

// CreatePreference handles POST /api/mercadopago/create-preference
func (h *MercadoPagoController) CreatePreference(w http.ResponseWriter, r *http.Request) {
	var req CreatePreferenceRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	booking, err := req.ToBooking()
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.checkout.CreateCheckout(r.Context(), string(checkout.ProviderMercadoPago), booking)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PreferenceResponse{
		Success:   true,
		InitPoint: result.RedirectURL,
		ID:        result.ProviderOrderID,
	})
}

// OAuthStart handles GET /api/mercadopago/oauth
func (h *MercadoPagoController) OAuthStart(w http.ResponseWriter, r *http.Request) {
	target, err := h.oauth.AuthorizationURL()
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// OAuthCallback handles GET /api/mercadopago/oauth/callback
func (h *MercadoPagoController) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		writeError(w, domainErrors.NewValidationError("error", denied))
		return
	}

	tok, err := h.oauth.Callback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Mercado Pago account connected",
		UserID:  tok.UserID,
	})
}

// OAuthRefresh handles POST /api/mercadopago/oauth/refresh
func (h *MercadoPagoController) OAuthRefresh(w http.ResponseWriter, r *http.Request) {
	tok, err := h.oauth.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "token refreshed",
		UserID:  tok.UserID,
	})
}

// PaymentStatus handles GET /api/mercadopago/payment-status?paymentId=
func (h *MercadoPagoController) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := firstQuery(r, "paymentId", "payment_id", "collection_id")
	if id == "" {
		writeError(w, domainErrors.NewValidationError("paymentId", "is required"))
		return
	}

	st, err := h.checkout.Status(r.Context(), string(checkout.ProviderMercadoPago), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(st))
}

// Webhook handles POST /api/mercadopago/webhook
func (h *MercadoPagoController) Webhook(w http.ResponseWriter, r *http.Request) {
	receiveWebhook(h.webhooks, string(checkout.ProviderMercadoPago), w, r)
}

func receiveWebhook(webhooks *service.WebhookService, provider string, w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, domainErrors.NewValidationError("body", "unreadable request body"))
		return
	}
	n, err := webhooks.Receive(r.Context(), provider, body, queryMap(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": n.ID})
}

func firstQuery(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

func toStatusResponse(st *checkout.PaymentStatus) StatusResponse {
	return StatusResponse{
		Success:      true,
		Status:       st.Status,
		StatusDetail: st.StatusDetail,
		Reference:    st.Reference,
	}
}
