package checkout

import "encoding/json"

// PaymentResult is the normalized outcome of a provider call. It is built once
// per request and never modified afterwards.
type PaymentResult struct {
	Success         bool
	Provider        Provider
	RedirectURL     string
	ProviderOrderID string
	QRCode          string
	Status          string
	IdempotencyKey  string
	Raw             json.RawMessage
}

// PaymentStatus is the normalized answer of a status lookup.
type PaymentStatus struct {
	Provider     Provider
	ID           string
	Status       string
	StatusDetail string
	Reference    string
}
