// Package reconcile matches asynchronous payment notifications to their
// originating registration and issues the invoice/receipt document, at
// most once per registration.
package reconcile

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/regpay/bridge/internal/domain"
	"github.com/regpay/bridge/internal/normalize"
	"github.com/regpay/bridge/internal/pelecard"
	"github.com/regpay/bridge/internal/summit"
)

// Outcome is the terminal state of one notification delivery.
type Outcome string

const (
	// OutcomeIgnored: the payload carried no usable transaction or
	// registration id. Acknowledged without action so the gateway does
	// not redeliver malformed input forever.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDeclined: the gateway result code was not the success
	// sentinel. No document is created.
	OutcomeDeclined Outcome = "declined"
	// OutcomeDuplicate: the registration already carries a receipt; the
	// redelivered notification is a no-op.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeReconciled: document created and scratch record updated.
	OutcomeReconciled Outcome = "reconciled"
	// OutcomeFailed: the payment succeeded but document creation did
	// not. Money moved with no receipt; this is the state to alert on.
	OutcomeFailed Outcome = "failed"
)

// Gateway is the slice of the payment-gateway client the workflow needs.
type Gateway interface {
	GetTransaction(transactionID string) *domain.PaymentNotification
}

// Accounting is the slice of the accounting client the workflow needs.
type Accounting interface {
	UpsertCustomer(rec domain.CustomerRecord) domain.UpsertOutcome
	CreateDocument(req summit.DocumentRequest) (summit.DocumentResult, error)
}

// RegistrationStore is the scratch-record contract the workflow relies on.
type RegistrationStore interface {
	Put(rec domain.RegistrationContext) error
	Get(regID string) (domain.RegistrationContext, error)
	MarkReconciled(regID string, amount float64, receiptURL string) (bool, error)
}

type Service struct {
	store       RegistrationStore
	gateway     Gateway
	accounting  Accounting
	sku         string
	description string
}

func NewService(store RegistrationStore, gateway Gateway, accounting Accounting, sku, description string) *Service {
	return &Service{
		store:       store,
		gateway:     gateway,
		accounting:  accounting,
		sku:         sku,
		description: description,
	}
}

// HandleNotification runs the full reconciliation for one webhook
// delivery. It never returns an error: whatever happens, the webhook is
// acknowledged, and the outcome says how it went.
func (s *Service) HandleNotification(body []byte, contentType string) Outcome {
	eventID := uuid.NewString()

	n, parser, ok := ParseNotification(body, contentType)
	if !ok {
		log.Printf("[reconcile] %s: unparseable notification payload", eventID)
		return OutcomeIgnored
	}

	txID := transactionID(n)
	regID := registrationID(n)
	if txID == "" || regID == "" {
		log.Printf("[reconcile] %s: notification (via %s) missing ids: txID=%q regID=%q",
			eventID, parser, txID, regID)
		return OutcomeIgnored
	}
	log.Printf("[reconcile] %s: notification via %s, txn %s, registration %s",
		eventID, parser, txID, regID)

	// The gateway's follow-up lookup is authoritative over the initial
	// push; when it answers, its fields supersede the notification's.
	if details := s.gateway.GetTransaction(txID); details != nil {
		n = n.Merge(*details)
	}

	if !pelecard.Approved(statusCode(n)) {
		log.Printf("[reconcile] %s: registration %s declined with status %q",
			eventID, regID, statusCode(n))
		return OutcomeDeclined
	}

	amount := float64(normalize.AmountMinorUnits(n)) / 100
	installments := normalize.InstallmentCount(n)

	rec, err := s.store.Get(regID)
	if err != nil {
		log.Printf("[reconcile] %s: %v (treating as no data)", eventID, err)
	}
	if rec.Reconciled() {
		log.Printf("[reconcile] %s: registration %s already reconciled, skipping", eventID, regID)
		return OutcomeDuplicate
	}

	externalID := rec.FamilyID
	if externalID == "" {
		externalID = regID
	}
	customer := domain.CustomerRecord{
		ExternalIdentifier: externalID,
		PersonID:           normalize.Digits(rec.PersonID),
		Name:               rec.CustomerName,
		Phone:              rec.CustomerPhone,
		Email:              rec.CustomerEmail,
		City:               rec.City,
		Address:            rec.Address,
	}

	outcome := s.accounting.UpsertCustomer(customer)
	log.Printf("[reconcile] %s: customer upsert for %s: %s", eventID, externalID, outcome)

	doc, err := s.accounting.CreateDocument(summit.DocumentRequest{
		Customer:     customer,
		Description:  s.description,
		SKU:          s.sku,
		Amount:       amount,
		Method:       domain.MethodCredit,
		Last4:        normalize.Last4(cardNumber(n)),
		Installments: installments,
	})
	if err != nil {
		log.Printf("[reconcile] ERROR %s: payment approved for registration %s (txn %s) but document creation failed: %v",
			eventID, regID, txID, err)
		return OutcomeFailed
	}

	s.persistResult(eventID, rec, regID, amount, doc.ReceiptURL)
	log.Printf("[reconcile] %s: registration %s reconciled, document %d", eventID, regID, doc.DocumentID)
	return OutcomeReconciled
}

// persistResult merges the paid amount and receipt URL into the scratch
// record. Persistence failure must never fail the webhook response, so
// everything here is log-and-continue.
func (s *Service) persistResult(eventID string, rec domain.RegistrationContext, regID string, amount float64, receiptURL string) {
	if rec.Empty() {
		// Session init never wrote a record (or the read failed); store
		// what we know so the redirect path can still show a receipt.
		rec = domain.RegistrationContext{RegID: regID}
		rec.PaidAmount = amount
		rec.ReceiptURL = receiptURL
		if err := s.store.Put(rec); err != nil {
			log.Printf("[reconcile] %s: %v", eventID, err)
		}
		return
	}

	won, err := s.store.MarkReconciled(regID, amount, receiptURL)
	if err != nil {
		log.Printf("[reconcile] %s: %v", eventID, err)
		return
	}
	if !won {
		log.Printf("[reconcile] ERROR %s: registration %s was reconciled concurrently; refusing to overwrite amount %.2f",
			eventID, regID, amount)
	}
}

// LookupStatus serves the user-facing redirect: it reads back the scratch
// record and, when the webhook has not landed yet, falls back to a direct
// gateway lookup purely to surface an amount. It never creates documents;
// that is the webhook path's exclusive job.
func (s *Service) LookupStatus(regID, transactionID string) (total, receiptURL string) {
	rec, err := s.store.Get(regID)
	if err != nil {
		log.Printf("[reconcile] %v (treating as no data)", err)
	}
	if rec.PaidAmount > 0 {
		return formatAmount(rec.PaidAmount), rec.ReceiptURL
	}

	if transactionID == "" {
		return "", rec.ReceiptURL
	}
	details := s.gateway.GetTransaction(transactionID)
	if details == nil || !pelecard.Approved(statusCode(*details)) {
		return "", rec.ReceiptURL
	}
	if minor := normalize.AmountMinorUnits(*details); minor > 0 {
		return formatAmount(float64(minor) / 100), rec.ReceiptURL
	}
	return "", rec.ReceiptURL
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
