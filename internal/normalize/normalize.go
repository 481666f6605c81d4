// Package normalize converts loosely-typed external input (free text, query
// strings, gateway notification fields) into validated domain values.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/regpay/bridge/internal/domain"
)

// Amount parses a free-text amount in major currency units. Currency
// symbols, commas and whitespace are stripped before parsing. Zero,
// negative, non-finite and empty inputs all fail validation.
func Amount(raw string) (float64, error) {
	// The minus sign survives the strip so negative inputs fail the
	// positivity check instead of silently turning positive.
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)

	if cleaned == "" {
		return 0, domain.Validation("amount invalid")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, domain.Validation("amount invalid")
	}
	return v, nil
}

// PaymentCount parses an installment count. It never fails: anything
// non-numeric or non-positive falls back to a single payment, since a bad
// count must not block receipt issuance.
func PaymentCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// methodLabels maps the operator-facing payment-method labels to their
// enum values. The enum literals themselves are accepted too, for callers
// that already speak the canonical form.
var methodLabels = map[string]domain.PaymentMethod{
	"מזומן":        domain.MethodCash,
	"אשראי":        domain.MethodCredit,
	"העברה בנקאית": domain.MethodBank,
	"cash":         domain.MethodCash,
	"credit":       domain.MethodCredit,
	"bank":         domain.MethodBank,
}

// PaymentMethod maps a human-readable payment-method label to its enum
// value. Absent input defaults to credit card; any unrecognized label fails.
func PaymentMethod(raw string) (domain.PaymentMethod, error) {
	label := strings.TrimSpace(raw)
	if label == "" {
		return domain.MethodCredit, nil
	}
	if m, ok := methodLabels[label]; ok {
		return m, nil
	}
	return "", domain.Validation("unsupported payment method")
}

// Phone strips everything but digits from a phone number.
func Phone(raw string) (string, error) {
	digits := Digits(raw)
	if digits == "" {
		return "", domain.Validation("phone required")
	}
	return digits, nil
}

// Digits returns only the digit runes of s.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// Gateway API revisions name the amount and installment-count fields
// differently. Order defines precedence: the first field present and
// parseable wins. Extend these lists, not the extraction logic.
var (
	amountFields       = []string{"DebitTotal", "Total", "DebitAmount", "Amount"}
	paymentCountFields = []string{"TotalPayments", "NumberOfPayments", "Payments"}
)

// AmountMinorUnits probes the known amount field names on a notification
// in priority order and returns the first integer match, in minor currency
// units. Returns 0 when no candidate is present.
func AmountMinorUnits(n domain.PaymentNotification) int {
	return probeInt(n, amountFields, 0)
}

// InstallmentCount probes the known payment-count field names in priority
// order, defaulting to a single payment.
func InstallmentCount(n domain.PaymentNotification) int {
	v := probeInt(n, paymentCountFields, 1)
	if v < 1 {
		return 1
	}
	return v
}

func probeInt(n domain.PaymentNotification, fields []string, def int) int {
	for _, f := range fields {
		raw := strings.TrimSpace(n.Get(f))
		if raw == "" {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

// Last4 extracts the last four digits of a (typically masked) card number.
func Last4(cardNumber string) string {
	digits := Digits(cardNumber)
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
