package webhook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receivedAt = time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)

func TestNewNotification_MercadoPagoPayment(t *testing.T) {
	body := []byte(`{"action":"payment.updated","type":"payment","data":{"id":"123456789"}}`)

	n := NewNotification("mercadopago", body, nil, receivedAt)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "mercadopago", n.Provider)
	assert.Equal(t, "payment", n.Topic)
	assert.Equal(t, "123456789", n.ResourceID)
	assert.JSONEq(t, string(body), string(n.Payload))
	assert.Equal(t, receivedAt, n.ReceivedAt)
}

func TestNewNotification_NumericDataID(t *testing.T) {
	n := NewNotification("mercadopago", []byte(`{"type":"payment","data":{"id":98765432101}}`), nil, receivedAt)

	assert.Equal(t, "98765432101", n.ResourceID)
}

func TestNewNotification_QueryParameters(t *testing.T) {
	n := NewNotification("mercadopago", []byte(`{}`), map[string]string{"topic": "merchant_order", "id": "42"}, receivedAt)

	assert.Equal(t, "merchant_order", n.Topic)
	assert.Equal(t, "42", n.ResourceID)
}

func TestNewNotification_PagBankOrder(t *testing.T) {
	n := NewNotification("pagbank", []byte(`{"id":"ORDE_ABC","reference_id":"ref-1","charges":[{"status":"PAID"}]}`), nil, receivedAt)

	assert.Equal(t, "order", n.Topic)
	assert.Equal(t, "ORDE_ABC", n.ResourceID)
}

func TestNewNotification_FormEncodedBody(t *testing.T) {
	n := NewNotification("pagseguro", []byte("notificationCode=ABC-123&notificationType=transaction"), nil, receivedAt)

	var s string
	require.NoError(t, json.Unmarshal(n.Payload, &s))
	assert.Equal(t, "notificationCode=ABC-123&notificationType=transaction", s)
	assert.Equal(t, "transaction", n.Topic)
	assert.Equal(t, "ABC-123", n.ResourceID)
}

func TestNewNotification_NotificationCodeInQuery(t *testing.T) {
	n := NewNotification("pagbank", nil, map[string]string{
		"notificationCode": "DEF-456",
		"notificationType": "transaction",
	}, receivedAt)

	assert.Equal(t, "transaction", n.Topic)
	assert.Equal(t, "DEF-456", n.ResourceID)
}

func TestNewNotification_UnparseableBody(t *testing.T) {
	n := NewNotification("pagbank", []byte("%zz not a form"), nil, receivedAt)

	assert.Empty(t, n.ResourceID)
	assert.Empty(t, n.Topic)
}
