package observability

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"token",
	"secret",
	"password",
	"authorization",
	"card",
	"cvv",
	"security_code",
	"encrypted",
	"tax_id",
	"cpf",
	"cnpj",
	"recaptcha",
}

var (
	bearerPattern    = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`)
	emailPattern     = regexp.MustCompile(`([A-Za-z0-9._%+\-])[A-Za-z0-9._%+\-]*@([A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)
	cpfPattern       = regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`)
	cardPattern      = regexp.MustCompile(`\b(?:\d[ -]?){13,18}\d\b`)
	mpTokenPattern   = regexp.MustCompile(`\b(?:APP_USR|TEST)-[A-Za-z0-9\-]{10,}\b`)
	stripeKeyPattern = regexp.MustCompile(`\b(?:sk|rk|pk)_(?:live|test)_[A-Za-z0-9]+\b`)
)

// IsSensitiveKey reports whether a field with this name must never be logged
// in clear text.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Mask keeps the last four characters of long values.
func Mask(value string) string {
	if len(value) <= 8 {
		return redacted
	}
	return redacted + value[len(value)-4:]
}

// MaskEmail hides the local part of an address except its first character.
func MaskEmail(email string) string {
	return emailPattern.ReplaceAllString(email, "$1***@$2")
}

// RedactString scrubs credentials, card numbers, tax ids and e-mail
// addresses from free text such as provider error bodies.
func RedactString(s string) string {
	s = bearerPattern.ReplaceAllString(s, "Bearer "+redacted)
	s = mpTokenPattern.ReplaceAllString(s, redacted)
	s = stripeKeyPattern.ReplaceAllString(s, redacted)
	s = cardPattern.ReplaceAllStringFunc(s, func(m string) string {
		if luhnValid(m) {
			return redacted
		}
		return m
	})
	s = cpfPattern.ReplaceAllString(s, redacted)
	return MaskEmail(s)
}

// RedactJSON walks a JSON document and masks sensitive members. Input that is
// not JSON is treated as text.
func RedactJSON(raw []byte) string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RedactString(string(raw))
	}
	out, err := json.Marshal(redactValue("", doc))
	if err != nil {
		return redacted
	}
	return string(out)
}

// Redact marshals v and masks it like RedactJSON.
func Redact(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return redacted
	}
	return RedactJSON(raw)
}

func redactValue(key string, v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = redactValue(k, val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(key, val)
		}
		return out
	case string:
		if key != "" && IsSensitiveKey(key) {
			return Mask(t)
		}
		return RedactString(t)
	case nil:
		return nil
	default:
		if key != "" && IsSensitiveKey(key) {
			return redacted
		}
		return t
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func luhnValid(number string) bool {
	sum, n := 0, 0
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 14 && sum%10 == 0
}
