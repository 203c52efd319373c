package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/idempotency"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const (
	maxIdempotencyBodySize = 1 << 20

	// IdempotencyKeyHeader is the client-supplied replay key.
	IdempotencyKeyHeader = "Idempotency-Key"
)

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key. Reusing a key with a different body is rejected with 422.
// Only responses below 500 are stored, so failed provider calls can be
// retried with the same key.
func Idempotency(store idempotency.Store, ttl time.Duration, metrics *observability.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodySize+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "could not read request body", "validation_error")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := r.Method + " " + r.URL.Path + " " + clientKey
			hash := requestHash(body)

			entry, err := store.Get(r.Context(), key)
			if err != nil {
				logger.Warn().Err(err).Msg("idempotency lookup failed, serving request")
			}
			if entry != nil && !entry.Expired(time.Now()) {
				if entry.RequestHash != "" && entry.RequestHash != hash {
					writeJSONError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different request", "idempotency_key_reused")
					return
				}
				if metrics != nil {
					metrics.IdempotentReplays.Inc()
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(entry.ResponseStatus)
				_, _ = io.WriteString(w, entry.ResponseBody)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			now := time.Now()
			if err := store.Set(r.Context(), &idempotency.Entry{
				Key:            key,
				RequestHash:    hash,
				ResponseBody:   rec.body.String(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(ttl),
			}); err != nil {
				logger.Warn().Err(err).Msg("idempotency store failed")
			}
		})
	}
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
