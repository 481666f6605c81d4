// Package summit is a client for the Summit accounting API: customer
// upsert and invoice/receipt document creation.
package summit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/regpay/bridge/internal/config"
	"github.com/regpay/bridge/internal/domain"
)

// Summit search modes for locating existing entities.
const (
	searchByExternalIdentifier = 2
	searchBySKU                = 4
)

// Summit document and payment type codes.
const (
	docTypeInvoiceAndReceipt = 1

	paymentTypeCash         = 1
	paymentTypeBankTransfer = 4
	paymentTypeCreditCard   = 5
)

type Client struct {
	baseURL   string
	companyID int
	apiKey    string
	http      *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   cfg.SummitBaseURL,
		companyID: cfg.SummitCompanyID,
		apiKey:    cfg.SummitAPIKey,
		http:      &http.Client{Timeout: 8 * time.Second},
	}
}

type credentials struct {
	CompanyID int    `json:"CompanyID"`
	APIKey    string `json:"APIKey"`
}

// envelope is the response wrapper shared by every Summit endpoint.
// Status is a pointer so a response missing the field entirely can be
// told apart from an explicit zero.
type envelope struct {
	Status                *int            `json:"Status"`
	UserErrorMessage      string          `json:"UserErrorMessage"`
	TechnicalErrorDetails string          `json:"TechnicalErrorDetails"`
	Data                  json.RawMessage `json:"Data"`
}

// unwrap validates the envelope and returns its data payload. The error
// message precedence is user-facing over technical over generic.
func unwrap(env *envelope) (json.RawMessage, error) {
	if env == nil || env.Status == nil {
		return nil, &domain.AccountingError{Msg: "Invalid response from Summit"}
	}
	if *env.Status != 0 {
		msg := env.UserErrorMessage
		if msg == "" {
			msg = env.TechnicalErrorDetails
		}
		if msg == "" {
			msg = "Summit returned an error"
		}
		return nil, &domain.AccountingError{Msg: msg}
	}
	return env.Data, nil
}

func (c *Client) post(path string, payload any) (*envelope, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &env, nil
}

type customerPayload struct {
	Credentials credentials  `json:"Credentials"`
	Customer    wireCustomer `json:"Customer"`
}

type wireCustomer struct {
	ExternalIdentifier string `json:"ExternalIdentifier"`
	CompanyNumber      string `json:"CompanyNumber,omitempty"`
	Name               string `json:"Name"`
	Phone              string `json:"Phone,omitempty"`
	EmailAddress       string `json:"EmailAddress,omitempty"`
	City               string `json:"City,omitempty"`
	Address            string `json:"Address,omitempty"`
	SearchMode         int    `json:"SearchMode"`
}

// UpsertCustomer updates the customer keyed by external identifier, and on
// any failure (including "not found") falls back to create. Update-first
// keeps duplicate customer records to a minimum at the cost of one extra
// round trip on first contact. Both steps failing is logged and swallowed:
// a document can still be issued against the external identifier alone.
func (c *Client) UpsertCustomer(rec domain.CustomerRecord) domain.UpsertOutcome {
	wire := wireCustomer{
		ExternalIdentifier: rec.ExternalIdentifier,
		CompanyNumber:      rec.PersonID,
		Name:               rec.Name,
		Phone:              rec.Phone,
		EmailAddress:       rec.Email,
		City:               rec.City,
		Address:            rec.Address,
		SearchMode:         searchByExternalIdentifier,
	}
	payload := customerPayload{Credentials: c.creds(), Customer: wire}

	if err := c.customerCall("/accounting/customers/update/", payload); err == nil {
		return domain.UpsertApplied
	}

	if err := c.customerCall("/accounting/customers/create/", payload); err != nil {
		log.Printf("[summit] customer upsert failed for %s: %v", rec.ExternalIdentifier, err)
		return domain.UpsertFailedIgnored
	}
	return domain.UpsertCreated
}

func (c *Client) customerCall(path string, payload customerPayload) error {
	env, err := c.post(path, payload)
	if err != nil {
		return err
	}
	_, err = unwrap(env)
	return err
}

func (c *Client) creds() credentials {
	return credentials{CompanyID: c.companyID, APIKey: c.apiKey}
}
