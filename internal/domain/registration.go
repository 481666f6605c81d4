package domain

// RegistrationContext is the per-registration scratch record bridging
// session initiation and the asynchronous payment confirmation. The zero
// value means "no data yet" and is a normal state for readers.
type RegistrationContext struct {
	RegID         string  `json:"reg_id"`
	CustomerName  string  `json:"customer_name,omitempty"`
	CustomerEmail string  `json:"customer_email,omitempty"`
	CustomerPhone string  `json:"customer_phone,omitempty"`
	City          string  `json:"city,omitempty"`
	Address       string  `json:"address,omitempty"`
	FamilyID      string  `json:"family_id,omitempty"`
	PersonID      string  `json:"person_id,omitempty"`
	PaidAmount    float64 `json:"paid_amount,omitempty"`
	ReceiptURL    string  `json:"receipt_url,omitempty"`
}

// Empty reports whether the record has never been written.
func (r RegistrationContext) Empty() bool {
	return r.RegID == ""
}

// Reconciled reports whether a receipt has already been issued for this
// registration. Once true, the amount/receipt pair must never be rewritten.
func (r RegistrationContext) Reconciled() bool {
	return r.ReceiptURL != ""
}

// CustomerRecord is the customer identity upserted into the accounting
// system before document creation. ExternalIdentifier is the stable
// correlation key (typically a family identifier).
type CustomerRecord struct {
	ExternalIdentifier string `json:"external_identifier"`
	PersonID           string `json:"person_id,omitempty"`
	Name               string `json:"name"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
	City               string `json:"city,omitempty"`
	Address            string `json:"address,omitempty"`
}
