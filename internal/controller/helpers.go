package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{domainErrors.ErrReauthorizationRequired, http.StatusBadRequest, "reauthorization_required"},
	{domainErrors.ErrInvalidOAuthState, http.StatusBadRequest, "invalid_oauth_state"},
	{domainErrors.ErrRecaptchaVerifyFailed, http.StatusBadRequest, "recaptcha_failed"},
	{domainErrors.ErrProviderNotFound, http.StatusBadRequest, "unknown_provider"},
	{domainErrors.ErrUnsupportedPayload, http.StatusBadRequest, "unsupported_payload"},
	{domainErrors.ErrProviderNotConfigured, http.StatusInternalServerError, "provider_not_configured"},
	{domainErrors.ErrRecaptchaNotConfigured, http.StatusInternalServerError, "recaptcha_not_configured"},
	{domainErrors.ErrProviderTimeout, http.StatusGatewayTimeout, "provider_timeout"},
	{domainErrors.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{domainErrors.ErrProviderUnreachable, http.StatusBadGateway, "provider_unreachable"},
	{domainErrors.ErrProviderNotFoundOrder, http.StatusNotFound, "not_found"},
	{domainErrors.ErrResponseShapeMismatch, http.StatusBadGateway, "response_shape_mismatch"},
	{domainErrors.ErrWebhookJournalUnavailable, http.StatusInternalServerError, "webhook_journal_unavailable"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		if len(validationErr.Violations) > 0 {
			resp.Details = validationErr.Violations
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	var upstream *domainErrors.UpstreamError
	if errors.As(err, &upstream) {
		resp.Retryable = upstream.Retryable()
		if upstream.Body != "" {
			resp.Details = upstreamDetails(upstream.Body)
		}
		if errors.Is(err, domainErrors.ErrProviderRejected) {
			resp.Code = "provider_rejected"
			status := http.StatusBadGateway
			if upstream.StatusCode == http.StatusBadRequest || upstream.StatusCode == http.StatusUnprocessableEntity {
				status = upstream.StatusCode
			}
			writeJSON(w, status, resp)
			return
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	resp.Details = nil
	writeJSON(w, http.StatusInternalServerError, resp)
}

// upstreamDetails returns the provider body with secrets masked, as JSON when
// it parses and as a string otherwise.
func upstreamDetails(body string) any {
	redacted := observability.RedactJSON([]byte(body))
	var v any
	if json.Unmarshal([]byte(redacted), &v) == nil {
		return v
	}
	return redacted
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags,
// reporting every violated field.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domainErrors.NewValidationError("body", "request body too large")
		}
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			violations := make([]domainErrors.Violation, 0, len(ve))
			for _, fe := range ve {
				violations = append(violations, domainErrors.Violation{
					Field:   lowerFirst(fe.Field()),
					Message: fe.Tag() + " validation failed",
				})
			}
			return domainErrors.NewValidationErrors("", violations)
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// queryMap flattens the first value of every query parameter.
func queryMap(r *http.Request) map[string]string {
	q := r.URL.Query()
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
