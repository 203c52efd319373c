package testutil

import (
	"io"
	"time"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	"github.com/dancingpatinacao/checkout/internal/domain/oauth"
	"github.com/rs/zerolog"
)

// NewTestBooking returns a valid single-lesson booking.
func NewTestBooking(amount float64) checkout.BookingRequest {
	return checkout.BookingRequest{
		StudentName:   "Ana",
		Email:         "ana@x.com",
		Amount:        amount,
		ScheduledDate: "2026-05-10",
		ScheduledTime: "14:00",
		TeacherID:     "teacher-1",
	}
}

// NewTestToken returns a grant created at createdAt that lasts ttl.
func NewTestToken(createdAt time.Time, ttl time.Duration) *oauth.Token {
	return &oauth.Token{
		AccessToken:  "APP_USR-current",
		RefreshToken: "TG-current",
		UserID:       987,
		ExpiresIn:    int64(ttl / time.Second),
		CreatedAt:    createdAt,
	}
}

// NopLogger discards everything.
func NopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
