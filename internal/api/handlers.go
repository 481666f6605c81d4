package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/regpay/bridge/internal/config"
	"github.com/regpay/bridge/internal/domain"
	"github.com/regpay/bridge/internal/normalize"
	"github.com/regpay/bridge/internal/reconcile"
	"github.com/regpay/bridge/internal/store"
	"github.com/regpay/bridge/internal/summit"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	cfg        *config.Config
	store      *store.Store
	gateway    PaymentGateway
	accounting *summit.Client
	reconciler *reconcile.Service
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

// --- InitSession ---

// InitSession starts a hosted payment session: it writes the initial
// scratch record and redirects the user to the gateway's payment page.
func (h *Handlers) InitSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	regID := q.Get("RegID")
	if regID == "" {
		http.Error(w, "RegID is required", http.StatusBadRequest)
		return
	}

	rec := domain.RegistrationContext{
		RegID:         regID,
		CustomerName:  q.Get("CustomerName"),
		CustomerEmail: q.Get("CustomerEmail"),
		CustomerPhone: q.Get("CustomerPhone"),
		City:          q.Get("City"),
		Address:       q.Get("Address"),
		FamilyID:      q.Get("familyid"),
		PersonID:      q.Get("personid"),
	}
	// A failed write must not abort the session: the webhook path can
	// still reconcile from the notification alone.
	if err := h.store.Put(rec); err != nil {
		log.Printf("[api] %v", err)
	}

	payURL, err := h.gateway.InitPayment(regID)
	if err != nil {
		log.Printf("[api] init session for %s: %v", regID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, payURL, http.StatusSeeOther)
}

// --- PelecardWebhook ---

// PelecardWebhook receives the gateway's server-side notification. It
// always answers 200 "OK": the gateway treats anything else as a cue to
// redeliver, and malformed or failed deliveries are handled (and logged)
// internally instead.
func (h *Handlers) PelecardWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[api] webhook body read: %v", err)
		body = nil
	}

	outcome := h.reconciler.HandleNotification(body, r.Header.Get("Content-Type"))
	log.Printf("[api] webhook outcome: %s", outcome)

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// --- UserRedirect ---

// UserRedirect is the user-facing return leg. It only reads state: the
// scratch record first, then a direct gateway lookup if the webhook has
// not landed yet. Document creation stays exclusive to the webhook path.
func (h *Handlers) UserRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	regID := q.Get("RegID")
	status := q.Get("Status")
	txID := q.Get("PelecardTransactionId")
	if txID == "" {
		txID = q.Get("TransactionId")
	}

	total, receiptURL := h.reconciler.LookupStatus(regID, txID)

	target, err := url.Parse(h.cfg.ResultsPageURL)
	if err != nil || h.cfg.ResultsPageURL == "" {
		http.Error(w, "results page not configured", http.StatusInternalServerError)
		return
	}
	params := target.Query()
	params.Set("RegID", regID)
	params.Set("Status", status)
	params.Set("Total", total)
	params.Set("ReceiptURL", receiptURL)
	target.RawQuery = params.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

// --- CreateDocumentDirect ---

type directDocumentRequest struct {
	Saved struct {
		CustomerExternalIdentifier string `json:"customerexternalidentifier"`
		PersonID                   string `json:"personid"`
		CustomerName               string `json:"CustomerName"`
		Phone                      string `json:"Phone"`
		Email                      string `json:"Email"`
	} `json:"saved"`
	Amount        json.Number `json:"amount"`
	Last4         string      `json:"last4"`
	Payments      json.Number `json:"payments"`
	SKU           string      `json:"sku"`
	PaymentMethod string      `json:"paymentMethod"`
	Bank          string      `json:"bank"`
	Branch        string      `json:"branch"`
	Account       string      `json:"account"`
}

// CreateDocumentDirect is the original direct entry point: a JSON body
// describing the customer and payment, bypassing the gateway flow.
func (h *Handlers) CreateDocumentDirect(w http.ResponseWriter, r *http.Request) {
	var req directDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "invalid JSON body"})
		return
	}

	fail := func(msg string) {
		log.Printf("[api] summit error: %s", msg)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": msg})
	}

	if req.Saved.CustomerExternalIdentifier == "" {
		fail("customerexternalidentifier is required")
		return
	}
	if req.Saved.PersonID == "" {
		fail("personid is required")
		return
	}
	if req.SKU == "" {
		fail("SKU Item is required")
		return
	}

	amount, err := normalize.Amount(req.Amount.String())
	if err != nil {
		fail(err.Error())
		return
	}
	method, err := normalize.PaymentMethod(req.PaymentMethod)
	if err != nil {
		fail(err.Error())
		return
	}

	doc, err := h.accounting.CreateDocument(summit.DocumentRequest{
		Customer: domain.CustomerRecord{
			ExternalIdentifier: req.Saved.CustomerExternalIdentifier,
			// Summit expects an unbroken number here.
			PersonID: normalize.Digits(req.Saved.PersonID),
			Name:     req.Saved.CustomerName,
			Phone:    req.Saved.Phone,
			Email:    req.Saved.Email,
		},
		Description:  h.cfg.ItemDescription,
		SKU:          req.SKU,
		Amount:       amount,
		Method:       method,
		Last4:        req.Last4,
		Installments: normalize.PaymentCount(req.Payments.String()),
		Bank:         req.Bank,
		Branch:       req.Branch,
		Account:      req.Account,
	})
	if err != nil {
		fail(err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"documentId": doc.DocumentID,
		"receiptUrl": doc.ReceiptURL,
	})
}

// --- CreateDocumentFromCRM ---

// CreateDocumentFromCRM is the synchronous entry point behind a CRM
// button: query parameters in, customer upsert + document out, ending in
// a redirect back to the CRM with the new receipt.
func (h *Handlers) CreateDocumentFromCRM(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	fail := func(msg string) {
		log.Printf("[api] summit-from-sf error: %s", msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}

	sku := q.Get("sku")
	if sku == "" {
		fail("sku is required")
		return
	}
	familyID := q.Get("familyid")
	if familyID == "" {
		fail("familyid is required")
		return
	}

	phone, err := normalize.Phone(q.Get("Phone"))
	if err != nil {
		fail(err.Error())
		return
	}
	amount, err := normalize.Amount(q.Get("amount"))
	if err != nil {
		fail(err.Error())
		return
	}
	method, err := normalize.PaymentMethod(q.Get("paymentMethod"))
	if err != nil {
		fail(err.Error())
		return
	}

	customer := domain.CustomerRecord{
		ExternalIdentifier: familyID,
		PersonID:           normalize.Digits(q.Get("personid")),
		Name:               q.Get("CustomerName"),
		Phone:              phone,
		Email:              q.Get("Email"),
		City:               q.Get("City"),
		Address:            q.Get("Address"),
	}

	outcome := h.accounting.UpsertCustomer(customer)
	log.Printf("[api] summit-from-sf customer upsert for %s: %s", familyID, outcome)

	doc, err := h.accounting.CreateDocument(summit.DocumentRequest{
		Customer:     customer,
		Description:  h.cfg.ItemDescription,
		SKU:          sku,
		Amount:       amount,
		Method:       method,
		Last4:        normalize.Last4(q.Get("last4")),
		Installments: normalize.PaymentCount(q.Get("paymentsNum")),
		Bank:         q.Get("bank"),
		Branch:       q.Get("branch"),
		Account:      q.Get("account"),
	})
	if err != nil {
		fail(err.Error())
		return
	}

	target, perr := url.Parse(h.cfg.CRMRedirectURL)
	if perr != nil || h.cfg.CRMRedirectURL == "" {
		fail("CRM redirect URL not configured")
		return
	}
	params := target.Query()
	params.Set("recordId", q.Get("paymentId"))
	params.Set("receiptUrl", doc.ReceiptURL)
	target.RawQuery = params.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}
