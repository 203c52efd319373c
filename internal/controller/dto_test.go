package controller

import (
	"encoding/json"
	"testing"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
		wantErr  bool
	}{
		{`50`, 50, false},
		{`50.5`, 50.5, false},
		{`"50"`, 50, false},
		{`"50,00"`, 50, false},
		{`"1.250,90"`, 1250.90, false},
		{`"R$ 80"`, 80, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"cinquenta"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a Amount
			err := json.Unmarshal([]byte(tt.in), &a)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, float64(a), 1e-9)
		})
	}
}

func TestPagBankRequest_FlatForm(t *testing.T) {
	var req PagBankRequest
	require.NoError(t, json.Unmarshal([]byte(`{"nome":"Ana","email":"ana@x.com","valor":50}`), &req))

	b, err := req.ToBooking()

	require.NoError(t, err)
	assert.Equal(t, "Ana", b.StudentName)
	assert.Equal(t, "ana@x.com", b.Email)
	assert.Equal(t, 50.0, b.Amount)
}

func TestPagBankRequest_AgendamentoForm(t *testing.T) {
	body := `{"agendamento":{"id":"ag-1","alunoNome":"Bia","email":"bia@x.com","telefone":"11987654321","cpf":"123.456.789-09","valor":"80,00","data":"2026-05-10","horario":"15:00","professorId":"prof-2"}}`
	var req PagBankRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	b, err := req.ToBooking()

	require.NoError(t, err)
	assert.Equal(t, "Bia", b.StudentName)
	assert.Equal(t, 80.0, b.Amount)
	assert.Equal(t, "ag-1", b.Reference)
	assert.Equal(t, "prof-2", b.TeacherID)
	assert.Equal(t, "123.456.789-09", b.TaxID)
}

func TestPagBankRequest_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing nome", `{"email":"ana@x.com","valor":50}`},
		{"missing email", `{"nome":"Ana","valor":50}`},
		{"missing valor", `{"nome":"Ana","email":"ana@x.com"}`},
		{"empty agendamento", `{"agendamento":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req PagBankRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			_, err := req.ToBooking()

			assert.ErrorIs(t, err, domainErrors.ErrValidationFailed)
			assert.EqualError(t, err, "nome, email e valor são obrigatórios")
		})
	}
}

func TestCreatePreferenceRequest_EmptyItems(t *testing.T) {
	req := CreatePreferenceRequest{Payer: PayerRequest{Email: "ana@x.com"}}

	_, err := req.ToBooking()

	assert.EqualError(t, err, "items array required and non-empty")
}

func TestCreatePreferenceRequest_ToBooking(t *testing.T) {
	body := `{
		"items":[{"title":"Aula","quantity":2,"unit_price":40}],
		"payer":{"name":"Ana","surname":"Souza","email":"ana@x.com","phone":{"area_code":"11","number":"987654321"},"identification":{"type":"CPF","number":"12345678909"}},
		"external_reference":"ag-9"
	}`
	var req CreatePreferenceRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	b, err := req.ToBooking()

	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", b.StudentName)
	assert.Equal(t, "11987654321", b.Phone)
	assert.Equal(t, "12345678909", b.TaxID)
	assert.Equal(t, "ag-9", b.Reference)
	require.Len(t, b.Items, 1)
	assert.Equal(t, 2, b.Items[0].Quantity)
	assert.Equal(t, 40.0, b.Items[0].UnitPrice)
}
