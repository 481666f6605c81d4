package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regpay/bridge/internal/config"
	"github.com/regpay/bridge/internal/domain"
	"github.com/regpay/bridge/internal/reconcile"
	"github.com/regpay/bridge/internal/store"
	"github.com/regpay/bridge/internal/summit"
)

type fakeGateway struct {
	payURL  string
	initErr error
	details *domain.PaymentNotification
}

func (f *fakeGateway) InitPayment(regID string) (string, error) {
	if f.initErr != nil {
		return "", f.initErr
	}
	return f.payURL + "?reg=" + regID, nil
}

func (f *fakeGateway) GetTransaction(string) *domain.PaymentNotification {
	return f.details
}

// fakeSummit stands in for the accounting API: upserts always succeed,
// document creation succeeds unless told otherwise.
func fakeSummit(t *testing.T, docCount *atomic.Int32, failDocs bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounting/customers/update/", "/accounting/customers/create/":
			json.NewEncoder(w).Encode(map[string]any{"Status": 0})
		case "/accounting/documents/create/":
			if failDocs {
				json.NewEncoder(w).Encode(map[string]any{"Status": 1, "UserErrorMessage": "quota exceeded"})
				return
			}
			docCount.Add(1)
			json.NewEncoder(w).Encode(map[string]any{
				"Status": 0,
				"Data": map[string]any{
					"DocumentID":          123456,
					"DocumentDownloadURL": "https://app.sumit.co.il/doc/123456.pdf",
				},
			})
		default:
			t.Errorf("unexpected summit path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	router   http.Handler
	store    *store.Store
	docCount *atomic.Int32
}

func newTestEnv(t *testing.T, gw *fakeGateway, failDocs bool) *env {
	t.Helper()

	docCount := &atomic.Int32{}
	summitSrv := fakeSummit(t, docCount, failDocs)

	cfg := &config.Config{
		SummitBaseURL:   summitSrv.URL,
		SummitCompanyID: 777,
		SummitAPIKey:    "key",
		ResultsPageURL:  "https://site.example.org/results",
		CRMRedirectURL:  "https://crm.example.org/done",
		DefaultSKU:      "42",
		ItemDescription: "registration fee",
	}

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	accounting := summit.NewClient(cfg)
	reconciler := reconcile.NewService(st, gw, accounting, cfg.DefaultSKU, cfg.ItemDescription)

	return &env{
		router:   NewRouter(cfg, st, gw, accounting, reconciler),
		store:    st,
		docCount: docCount,
	}
}

func TestInitSession(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{payURL: "https://gateway/pay"}, false)

	req := httptest.NewRequest(http.MethodGet, "/?RegID=ABC&CustomerName=Jane&CustomerEmail=j@x.com", nil)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "https://gateway/pay?reg=ABC", rr.Header().Get("Location"))

	rec, err := e.store.Get("ABC")
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec.CustomerName)
	assert.Equal(t, "j@x.com", rec.CustomerEmail)
}

func TestInitSessionMissingRegID(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{payURL: "https://gateway/pay"}, false)

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInitSessionGatewayFailure(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{initErr: &domain.GatewayError{Msg: "gateway returned no payment URL"}}, false)

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/?RegID=ABC", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "gateway returned no payment URL")
}

const approvedWebhook = `{"TransactionId":"tx-1","StatusCode":"000","DebitTotal":"15000","TotalPayments":"1","CreditCardNumber":"****1234","ParamX":"ABC"}`

func postWebhook(e *env, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pelecard-callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestWebhookReconciles(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)
	require.NoError(t, e.store.Put(domain.RegistrationContext{RegID: "ABC", CustomerName: "Jane", FamilyID: "F-17"}))

	rr := postWebhook(e, approvedWebhook)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	assert.Equal(t, int32(1), e.docCount.Load())
	rec, err := e.store.Get("ABC")
	require.NoError(t, err)
	assert.Equal(t, 150.00, rec.PaidAmount)
	assert.NotEmpty(t, rec.ReceiptURL)
}

func TestWebhookDeclined(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)
	require.NoError(t, e.store.Put(domain.RegistrationContext{RegID: "ABC", CustomerName: "Jane"}))

	body := `{"TransactionId":"tx-1","StatusCode":"001","DebitTotal":"15000","ParamX":"ABC"}`
	rr := postWebhook(e, body)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.Zero(t, e.docCount.Load())

	rec, err := e.store.Get("ABC")
	require.NoError(t, err)
	assert.Zero(t, rec.PaidAmount)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	// Even when reconciliation fails downstream, the gateway gets 200 so
	// it does not redeliver.
	e := newTestEnv(t, &fakeGateway{}, true)
	require.NoError(t, e.store.Put(domain.RegistrationContext{RegID: "ABC", FamilyID: "F-17"}))

	rr := postWebhook(e, approvedWebhook)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = postWebhook(e, "garbage")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)
	require.NoError(t, e.store.Put(domain.RegistrationContext{RegID: "ABC", FamilyID: "F-17"}))

	postWebhook(e, approvedWebhook)
	postWebhook(e, approvedWebhook)

	assert.Equal(t, int32(1), e.docCount.Load(), "one document per registration")
}

func TestUserRedirect(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)
	require.NoError(t, e.store.Put(domain.RegistrationContext{
		RegID:      "ABC",
		PaidAmount: 150,
		ReceiptURL: "https://receipts/9.pdf",
	}))

	req := httptest.NewRequest(http.MethodGet, "/callback?Status=success&RegID=ABC", nil)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "site.example.org", loc.Host)
	assert.Equal(t, "ABC", loc.Query().Get("RegID"))
	assert.Equal(t, "success", loc.Query().Get("Status"))
	assert.Equal(t, "150.00", loc.Query().Get("Total"))
	assert.Equal(t, "https://receipts/9.pdf", loc.Query().Get("ReceiptURL"))
}

func TestUserRedirectBeforeWebhook(t *testing.T) {
	// The webhook has not landed: Total and ReceiptURL may be empty, and
	// the redirect still happens.
	e := newTestEnv(t, &fakeGateway{}, false)
	require.NoError(t, e.store.Put(domain.RegistrationContext{RegID: "ABC", CustomerName: "Jane"}))

	req := httptest.NewRequest(http.MethodGet, "/callback?Status=success&RegID=ABC", nil)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Empty(t, loc.Query().Get("Total"))
	assert.Empty(t, loc.Query().Get("ReceiptURL"))
	assert.Zero(t, e.docCount.Load(), "the redirect path never creates documents")
}

func TestCreateDocumentDirect(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)

	body := `{
		"saved": {"customerexternalidentifier": "F-17", "personid": "12 345 678", "CustomerName": "Jane"},
		"amount": 150.5,
		"last4": "1234",
		"payments": 3,
		"sku": "42"
	}`
	req := httptest.NewRequest(http.MethodPost, "/summit", strings.NewReader(body))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, float64(123456), resp["documentId"])
	assert.Equal(t, "https://app.sumit.co.il/doc/123456.pdf", resp["receiptUrl"])
}

func TestCreateDocumentDirectValidation(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			"missing external identifier",
			`{"saved": {"personid": "1"}, "amount": 10, "sku": "42"}`,
			"customerexternalidentifier is required",
		},
		{
			"missing person id",
			`{"saved": {"customerexternalidentifier": "F-17"}, "amount": 10, "sku": "42"}`,
			"personid is required",
		},
		{
			"missing sku",
			`{"saved": {"customerexternalidentifier": "F-17", "personid": "1"}, "amount": 10}`,
			"SKU Item is required",
		},
		{
			"bad amount",
			`{"saved": {"customerexternalidentifier": "F-17", "personid": "1"}, "amount": 0, "sku": "42"}`,
			"amount invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/summit", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			e.router.ServeHTTP(rr, req)

			require.Equal(t, http.StatusInternalServerError, rr.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, false, resp["ok"])
			assert.Equal(t, tt.wantErr, resp["error"])
		})
	}
}

func TestCreateDocumentFromCRM(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)

	q := url.Values{
		"paymentId":    {"PAY-77"},
		"familyid":     {"F-17"},
		"personid":     {"123456789"},
		"CustomerName": {"Jane"},
		"Phone":        {"052-123-4567"},
		"amount":       {"₪1,250.50"},
		"paymentsNum":  {"2"},
		"sku":          {"42"},
	}
	req := httptest.NewRequest(http.MethodGet, "/summit-from-sf?"+q.Encode(), nil)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "crm.example.org", loc.Host)
	assert.Equal(t, "PAY-77", loc.Query().Get("recordId"))
	assert.Equal(t, "https://app.sumit.co.il/doc/123456.pdf", loc.Query().Get("receiptUrl"))
	assert.Equal(t, int32(1), e.docCount.Load())
}

func TestCreateDocumentFromCRMValidation(t *testing.T) {
	e := newTestEnv(t, &fakeGateway{}, false)

	tests := []struct {
		name    string
		query   string
		wantErr string
	}{
		{"missing sku", "familyid=F-17&Phone=052&amount=10", "sku is required"},
		{"missing family id", "sku=42&Phone=052&amount=10", "familyid is required"},
		{"missing phone", "sku=42&familyid=F-17&amount=10", "phone required"},
		{"bad amount", "sku=42&familyid=F-17&Phone=052&amount=-5", "amount invalid"},
		{"bad method", "sku=42&familyid=F-17&Phone=052&amount=10&paymentMethod=paypal", "unsupported payment method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/summit-from-sf?"+tt.query, nil)
			rr := httptest.NewRecorder()
			e.router.ServeHTTP(rr, req)

			require.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, tt.wantErr, strings.TrimSpace(rr.Body.String()))
		})
	}
}
