package checkout

import (
	"reflect"
	"strings"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/go-playground/validator/v10"
)

// Provider identifies an external payment processor.
type Provider string

const (
	ProviderMercadoPago Provider = "mercadopago"
	ProviderPagBank     Provider = "pagbank"
	ProviderStripe      Provider = "stripe"
)

const (
	DefaultCurrency  = "BRL"
	DefaultItemTitle = "Aula de patinação"
	// DefaultTaxID is sent when the customer did not inform a CPF.
	DefaultTaxID = "00000000000"
)

// LineItem is a single purchasable entry. UnitPrice is in currency units.
type LineItem struct {
	ID        string  `validate:"omitempty,max=256"`
	Title     string  `validate:"omitempty,max=256"`
	Quantity  int     `validate:"gte=0,lte=1000"`
	UnitPrice float64 `validate:"gt=0,lte=1000000,cents"`
}

// BookingRequest is the request-scoped input every payment provider builds
// its payload from. Amount is in currency units (reais).
type BookingRequest struct {
	StudentName   string     `validate:"omitempty,max=256"`
	Email         string     `validate:"required,email"`
	Phone         string     `validate:"omitempty,max=32"`
	TaxID         string     `validate:"omitempty,max=18"`
	Amount        float64    `validate:"gt=0,lte=1000000,cents"`
	ScheduledDate string     `validate:"omitempty,max=32"`
	ScheduledTime string     `validate:"omitempty,max=16"`
	TeacherID     string     `validate:"omitempty,max=128"`
	Reference     string     `validate:"omitempty,max=64"`
	Items         []LineItem `validate:"max=100,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// cents rejects amounts that round to less than one minor unit.
	_ = v.RegisterValidation("cents", func(fl validator.FieldLevel) bool {
		c, err := ToCents(fl.Field().Float())
		return err == nil && c >= 1
	})
	return v
}

// Validate checks the request invariants and returns a *ValidationError
// listing every violated field.
func (b BookingRequest) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return domainErrors.NewValidationError("body", err.Error())
	}
	violations := make([]domainErrors.Violation, 0, len(ve))
	for _, fe := range ve {
		violations = append(violations, domainErrors.Violation{
			Field:   fieldName(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return domainErrors.NewValidationErrors("", violations)
}

// Lines returns the items to charge. A request without items becomes a single
// lesson priced at Amount.
func (b BookingRequest) Lines() []LineItem {
	if len(b.Items) == 0 {
		return []LineItem{{Title: DefaultItemTitle, Quantity: 1, UnitPrice: b.Amount}}
	}
	lines := make([]LineItem, len(b.Items))
	for i, it := range b.Items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		if strings.TrimSpace(it.Title) == "" {
			it.Title = DefaultItemTitle
		}
		lines[i] = it
	}
	return lines
}

// TaxIDOrDefault returns the digits of the tax id, or the placeholder.
func (b BookingRequest) TaxIDOrDefault() string {
	digits := onlyDigits(b.TaxID)
	if digits == "" {
		return DefaultTaxID
	}
	return digits
}

// NameOrDefault falls back to the e-mail local part when no name was given.
func (b BookingRequest) NameOrDefault() string {
	if name := strings.TrimSpace(b.StudentName); name != "" {
		return name
	}
	if at := strings.IndexByte(b.Email, '@'); at > 0 {
		return b.Email[:at]
	}
	return "Aluno"
}

// Description summarizes the lesson for provider dashboards.
func (b BookingRequest) Description() string {
	parts := []string{DefaultItemTitle}
	if b.ScheduledDate != "" {
		parts = append(parts, b.ScheduledDate)
	}
	if b.ScheduledTime != "" {
		parts = append(parts, b.ScheduledTime)
	}
	return strings.Join(parts, " - ")
}

// SumItems totals quantity × unit price of items, in currency units.
func SumItems(items []LineItem) (float64, error) {
	total, err := TotalCents(items)
	if err != nil {
		return 0, err
	}
	return FromCents(total), nil
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

var jsonNames = map[string]string{
	"StudentName":   "studentName",
	"Email":         "email",
	"Phone":         "phone",
	"TaxID":         "taxId",
	"Amount":        "amount",
	"ScheduledDate": "scheduledDate",
	"ScheduledTime": "scheduledTime",
	"TeacherID":     "teacherId",
	"Reference":     "reference",
	"Items":         "items",
	"Title":         "title",
	"Quantity":      "quantity",
	"UnitPrice":     "unit_price",
	"ID":            "id",
}

// fieldName turns "BookingRequest.Items[0].UnitPrice" into "items[0].unit_price".
func fieldName(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		idx := ""
		if b := strings.IndexByte(p, '['); b >= 0 {
			p, idx = p[:b], p[b:]
		}
		if n, ok := jsonNames[p]; ok {
			p = n
		}
		parts[i] = p + idx
	}
	return strings.Join(parts, ".")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " entries"
		}
		return "must be at most " + fe.Param() + " characters"
	case "cents":
		return "must be at least 0.01"
	default:
		return fe.Tag() + " validation failed"
	}
}
