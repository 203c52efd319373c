package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dancingpatinacao/checkout/internal/domain/checkout"
	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
)

// --- Request DTOs ---
// These DTOs mirror what the web front end sends. Controllers convert them to
// checkout.BookingRequest; invariants are checked by the checkout service.

// Amount accepts a JSON number or a string such as "50", "50.00" or "50,00".
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*a = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
		if s == "" {
			*a = 0
			return nil
		}
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", s)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// ItemRequest is a line item as Mercado Pago's Checkout Pro names it.
type ItemRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Amount `json:"unit_price"`
	CurrencyID  string `json:"currency_id"`
}

type PayerRequest struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
	Phone   *struct {
		AreaCode string `json:"area_code"`
		Number   string `json:"number"`
	} `json:"phone"`
	Identification *struct {
		Type   string `json:"type"`
		Number string `json:"number"`
	} `json:"identification"`
}

// CreatePreferenceRequest is the body of POST /api/mercadopago/create-preference.
type CreatePreferenceRequest struct {
	Items             []ItemRequest `json:"items"`
	Payer             PayerRequest  `json:"payer"`
	ExternalReference string        `json:"external_reference"`
	Agendamento       *Agendamento  `json:"agendamento"`
}

// Agendamento is a lesson booking as stored by the front end.
type Agendamento struct {
	ID          string `json:"id"`
	Nome        string `json:"nome"`
	AlunoNome   string `json:"alunoNome"`
	Email       string `json:"email"`
	Telefone    string `json:"telefone"`
	CPF         string `json:"cpf"`
	Valor       Amount `json:"valor"`
	Data        string `json:"data"`
	Horario     string `json:"horario"`
	ProfessorID string `json:"professorId"`
}

// PagBankRequest is the body of the PagBank endpoints: either a full
// {agendamento} or the flat {nome, email, valor} form.
type PagBankRequest struct {
	Agendamento *Agendamento `json:"agendamento"`
	Nome        string       `json:"nome"`
	Email       string       `json:"email"`
	Telefone    string       `json:"telefone"`
	CPF         string       `json:"cpf"`
	Valor       Amount       `json:"valor"`
	Data        string       `json:"data"`
	Horario     string       `json:"horario"`
	ProfessorID string       `json:"professorId"`
	Referencia  string       `json:"referencia"`
}

// BookingDTO is the English booking shape used by Stripe and /api/checkout.
type BookingDTO struct {
	StudentName   string        `json:"studentName"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	TaxID         string        `json:"taxId"`
	Amount        Amount        `json:"amount"`
	ScheduledDate string        `json:"scheduledDate"`
	ScheduledTime string        `json:"scheduledTime"`
	TeacherID     string        `json:"teacherId"`
	Reference     string        `json:"reference"`
	Items         []ItemRequest `json:"items"`
}

// CheckoutRequest is the body of POST /api/checkout.
type CheckoutRequest struct {
	Provider string `json:"provider" validate:"required,max=32"`
	BookingDTO
}

type RecaptchaRequest struct {
	RecaptchaToken string `json:"recaptchaToken" validate:"required"`
}

// --- Response DTOs ---

type PreferenceResponse struct {
	Success   bool   `json:"success"`
	InitPoint string `json:"init_point"`
	ID        string `json:"id"`
}

type PagBankResponse struct {
	Success    bool   `json:"success"`
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
	QRCode     string `json:"qr_code,omitempty"`
}

type StripeSessionResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	URL     string `json:"url"`
}

type CheckoutResponse struct {
	Success        bool   `json:"success"`
	Provider       string `json:"provider"`
	OrderID        string `json:"order_id"`
	PaymentURL     string `json:"payment_url"`
	QRCode         string `json:"qr_code,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

type StatusResponse struct {
	Success      bool   `json:"success"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail,omitempty"`
	Reference    string `json:"reference,omitempty"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  int64  `json:"user_id,omitempty"`
}

type RecaptchaResponse struct {
	Success bool `json:"success"`
	Details any  `json:"details,omitempty"`
}

// ErrorResponse is every error body.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// --- Conversion helpers ---

func (i ItemRequest) toLineItem() checkout.LineItem {
	return checkout.LineItem{
		ID:        i.ID,
		Title:     i.Title,
		Quantity:  i.Quantity,
		UnitPrice: float64(i.UnitPrice),
	}
}

func toLineItems(items []ItemRequest) []checkout.LineItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]checkout.LineItem, len(items))
	for i, it := range items {
		out[i] = it.toLineItem()
	}
	return out
}

// ToBooking maps a preference request. Mercado Pago requires at least one item.
func (r CreatePreferenceRequest) ToBooking() (checkout.BookingRequest, error) {
	if len(r.Items) == 0 {
		return checkout.BookingRequest{}, domainErrors.NewValidationErrors(domainErrors.ErrEmptyItems.Error(), []domainErrors.Violation{
			{Field: "items", Message: "is required"},
		})
	}
	b := checkout.BookingRequest{
		StudentName: strings.TrimSpace(r.Payer.Name + " " + r.Payer.Surname),
		Email:       r.Payer.Email,
		Reference:   r.ExternalReference,
		Items:       toLineItems(r.Items),
	}
	if r.Payer.Phone != nil {
		b.Phone = r.Payer.Phone.AreaCode + r.Payer.Phone.Number
	}
	if r.Payer.Identification != nil {
		b.TaxID = r.Payer.Identification.Number
	}
	if a := r.Agendamento; a != nil {
		b.ScheduledDate = a.Data
		b.ScheduledTime = a.Horario
		b.TeacherID = a.ProfessorID
		if b.Reference == "" {
			b.Reference = a.ID
		}
		if b.Email == "" {
			b.Email = a.Email
		}
		if b.StudentName == "" {
			b.StudentName = a.name()
		}
	}
	return b, nil
}

func (a *Agendamento) name() string {
	if a.AlunoNome != "" {
		return a.AlunoNome
	}
	return a.Nome
}

// ToBooking maps either PagBank body form. Missing name, e-mail or amount is
// reported with the message the front end expects.
func (r PagBankRequest) ToBooking() (checkout.BookingRequest, error) {
	b := checkout.BookingRequest{
		StudentName:   r.Nome,
		Email:         r.Email,
		Phone:         r.Telefone,
		TaxID:         r.CPF,
		Amount:        float64(r.Valor),
		ScheduledDate: r.Data,
		ScheduledTime: r.Horario,
		TeacherID:     r.ProfessorID,
		Reference:     r.Referencia,
	}
	if a := r.Agendamento; a != nil {
		b = checkout.BookingRequest{
			StudentName:   a.name(),
			Email:         a.Email,
			Phone:         a.Telefone,
			TaxID:         a.CPF,
			Amount:        float64(a.Valor),
			ScheduledDate: a.Data,
			ScheduledTime: a.Horario,
			TeacherID:     a.ProfessorID,
			Reference:     a.ID,
		}
	}

	var missing []domainErrors.Violation
	if strings.TrimSpace(b.StudentName) == "" {
		missing = append(missing, domainErrors.Violation{Field: "nome", Message: "is required"})
	}
	if strings.TrimSpace(b.Email) == "" {
		missing = append(missing, domainErrors.Violation{Field: "email", Message: "is required"})
	}
	if b.Amount <= 0 {
		missing = append(missing, domainErrors.Violation{Field: "valor", Message: "must be greater than 0"})
	}
	if len(missing) > 0 {
		return checkout.BookingRequest{}, domainErrors.NewValidationErrors("nome, email e valor são obrigatórios", missing)
	}
	return b, nil
}

func (d BookingDTO) ToBooking() checkout.BookingRequest {
	return checkout.BookingRequest{
		StudentName:   d.StudentName,
		Email:         d.Email,
		Phone:         d.Phone,
		TaxID:         d.TaxID,
		Amount:        float64(d.Amount),
		ScheduledDate: d.ScheduledDate,
		ScheduledTime: d.ScheduledTime,
		TeacherID:     d.TeacherID,
		Reference:     d.Reference,
		Items:         toLineItems(d.Items),
	}
}
