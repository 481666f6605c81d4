package reconcile

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/regpay/bridge/internal/domain"
)

// The gateway delivers notifications in more than one shape: a plain JSON
// body, a JSON document nested inside a form field, or flat form fields.
// Each shape gets a parser; they are tried in order and the first match
// wins.
var parsers = []struct {
	name string
	fn   func(body []byte, contentType string) (domain.PaymentNotification, bool)
}{
	{"json-body", parseJSONBody},
	{"json-in-form-field", parseNestedForm},
	{"flat-form", parseFlatForm},
}

// Form fields the gateway has been seen nesting a JSON payload under.
var nestedPayloadFields = []string{"ResultData", "Response", "data"}

// Identifier field synonyms, in priority order.
var (
	transactionIDFields  = []string{"TransactionId", "TransactionID", "PelecardTransactionId"}
	registrationIDFields = []string{"ParamX", "UserKey"}
	statusCodeFields     = []string{"StatusCode", "ResultCode", "Status"}
	cardNumberFields     = []string{"CreditCardNumber", "CardNumber"}
)

// ParseNotification tries each known payload shape in turn and returns the
// parsed notification together with the name of the strategy that matched.
func ParseNotification(body []byte, contentType string) (domain.PaymentNotification, string, bool) {
	for _, p := range parsers {
		if n, ok := p.fn(body, contentType); ok {
			return n, p.name, true
		}
	}
	return domain.PaymentNotification{}, "", false
}

func parseJSONBody(body []byte, contentType string) (domain.PaymentNotification, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return domain.PaymentNotification{}, false
	}
	return jsonToNotification([]byte(trimmed))
}

func parseNestedForm(body []byte, contentType string) (domain.PaymentNotification, bool) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return domain.PaymentNotification{}, false
	}
	for _, field := range nestedPayloadFields {
		raw := values.Get(field)
		if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
			continue
		}
		if n, ok := jsonToNotification([]byte(raw)); ok {
			return n, true
		}
	}
	return domain.PaymentNotification{}, false
}

func parseFlatForm(body []byte, contentType string) (domain.PaymentNotification, bool) {
	values, err := url.ParseQuery(string(body))
	if err != nil || len(values) == 0 {
		return domain.PaymentNotification{}, false
	}
	n := domain.PaymentNotification{Fields: make(map[string]string, len(values))}
	for k := range values {
		n.Fields[k] = values.Get(k)
	}
	return n, true
}

func jsonToNotification(raw []byte) (domain.PaymentNotification, bool) {
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || len(decoded) == 0 {
		return domain.PaymentNotification{}, false
	}

	n := domain.PaymentNotification{Fields: make(map[string]string, len(decoded))}
	flatten(decoded, n.Fields)
	return n, true
}

// flatten folds nested objects (e.g. a ResultData wrapper) into one flat
// field map. Inner fields win only when the name is not already taken at
// the outer level.
func flatten(m map[string]any, out map[string]string) {
	var nested []map[string]any
	for k, v := range m {
		if obj, ok := v.(map[string]any); ok {
			nested = append(nested, obj)
			continue
		}
		if _, taken := out[k]; !taken {
			out[k] = scalarString(v)
		}
	}
	for _, obj := range nested {
		flatten(obj, out)
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Whole values lose the ".0" so minor-unit amounts parse as ints.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func transactionID(n domain.PaymentNotification) string {
	return firstOf(n, transactionIDFields)
}

func registrationID(n domain.PaymentNotification) string {
	return firstOf(n, registrationIDFields)
}

func statusCode(n domain.PaymentNotification) string {
	return firstOf(n, statusCodeFields)
}

func cardNumber(n domain.PaymentNotification) string {
	return firstOf(n, cardNumberFields)
}

func firstOf(n domain.PaymentNotification, fields []string) string {
	for _, f := range fields {
		if v := strings.TrimSpace(n.Get(f)); v != "" {
			return v
		}
	}
	return ""
}
