package summit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/regpay/bridge/internal/domain"
)

// DocumentRequest describes one invoice/receipt: a single line item priced
// at the full amount, paid in one payment block.
type DocumentRequest struct {
	Customer    domain.CustomerRecord
	Description string
	SKU         string
	Amount      float64

	Method       domain.PaymentMethod
	Last4        string
	Installments int
	Bank         string
	Branch       string
	Account      string
}

type DocumentResult struct {
	DocumentID int64
	ReceiptURL string
}

type documentPayload struct {
	Details     documentDetails `json:"Details"`
	Items       []documentItem  `json:"Items"`
	Payments    []wirePayment   `json:"Payments"`
	VATIncluded bool            `json:"VATIncluded"`
	Credentials credentials     `json:"Credentials"`
}

type documentDetails struct {
	Type     int          `json:"Type"`
	Date     string       `json:"Date"`
	Original bool         `json:"Original"`
	IsDraft  bool         `json:"IsDraft"`
	Customer wireCustomer `json:"Customer"`
}

type documentItem struct {
	Quantity  int         `json:"Quantity"`
	UnitPrice float64     `json:"UnitPrice"`
	Item      documentSKU `json:"Item"`
}

type documentSKU struct {
	SKU         string `json:"SKU"`
	SearchMode  int    `json:"SearchMode"`
	Description string `json:"Description"`
}

type wirePayment struct {
	Amount              float64          `json:"Amount"`
	Type                int              `json:"Type"`
	DetailsCreditCard   *creditCardBlock `json:"Details_CreditCard,omitempty"`
	DetailsBankTransfer *bankBlock       `json:"Details_BankTransfer,omitempty"`
}

type creditCardBlock struct {
	Last4Digits string `json:"Last4Digits"`
	Payments    int    `json:"Payments"`
}

type bankBlock struct {
	Bank    string `json:"Bank"`
	Branch  string `json:"Branch"`
	Account string `json:"Account"`
}

type documentData struct {
	DocumentID          int64  `json:"DocumentID"`
	DocumentNumber      int64  `json:"DocumentNumber"`
	DocumentDownloadURL string `json:"DocumentDownloadURL"`
}

// CreateDocument issues an invoice/receipt. A success envelope without a
// document id still counts as a failure: money was acknowledged but no
// receipt exists, and the caller must treat it that way.
func (c *Client) CreateDocument(req DocumentRequest) (DocumentResult, error) {
	if req.SKU == "" {
		return DocumentResult{}, &domain.AccountingError{Msg: "SKU Item is required"}
	}
	if req.Amount <= 0 {
		return DocumentResult{}, &domain.AccountingError{Msg: "amount is required for payment"}
	}
	if req.Customer.ExternalIdentifier == "" {
		return DocumentResult{}, &domain.AccountingError{Msg: "customerexternalidentifier is required"}
	}

	name := req.Customer.Name
	if name == "" {
		name = "Client"
	}

	payload := documentPayload{
		Details: documentDetails{
			Type:     docTypeInvoiceAndReceipt,
			Date:     time.Now().UTC().Format(time.RFC3339),
			Original: true,
			IsDraft:  false,
			Customer: wireCustomer{
				ExternalIdentifier: req.Customer.ExternalIdentifier,
				CompanyNumber:      req.Customer.PersonID,
				Name:               name,
				SearchMode:         searchByExternalIdentifier,
			},
		},
		Items: []documentItem{{
			Quantity:  1,
			UnitPrice: req.Amount,
			Item: documentSKU{
				SKU:         req.SKU,
				SearchMode:  searchBySKU,
				Description: req.Description,
			},
		}},
		Payments:    []wirePayment{buildPayment(req)},
		VATIncluded: true,
		Credentials: c.creds(),
	}

	env, err := c.post("/accounting/documents/create/", payload)
	if err != nil {
		return DocumentResult{}, fmt.Errorf("create document: %w", err)
	}
	data, err := unwrap(env)
	if err != nil {
		return DocumentResult{}, err
	}

	var doc documentData
	if err := json.Unmarshal(data, &doc); err != nil || doc.DocumentID == 0 {
		return DocumentResult{}, &domain.AccountingError{Msg: "document creation failed"}
	}

	return DocumentResult{
		DocumentID: doc.DocumentID,
		ReceiptURL: doc.DocumentDownloadURL,
	}, nil
}

func buildPayment(req DocumentRequest) wirePayment {
	p := wirePayment{Amount: req.Amount}

	switch req.Method {
	case domain.MethodCash:
		p.Type = paymentTypeCash
	case domain.MethodBank:
		p.Type = paymentTypeBankTransfer
		p.DetailsBankTransfer = &bankBlock{
			Bank:    req.Bank,
			Branch:  req.Branch,
			Account: req.Account,
		}
	default:
		installments := req.Installments
		if installments < 1 {
			installments = 1
		}
		p.Type = paymentTypeCreditCard
		p.DetailsCreditCard = &creditCardBlock{
			Last4Digits: req.Last4,
			Payments:    installments,
		}
	}
	return p
}
