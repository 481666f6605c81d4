// Package pelecard is a thin client for the Pelecard hosted-payment
// gateway: session initiation and transaction lookup.
package pelecard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/regpay/bridge/internal/config"
	"github.com/regpay/bridge/internal/domain"
)

// statusApproved is the gateway's success sentinel. Some response shapes
// carry it zero-padded, some as a bare zero.
const (
	statusApproved      = "000"
	statusApprovedShort = "0"
)

// Approved reports whether a gateway status code means the transaction
// went through. Anything else is a declined or failed payment.
func Approved(statusCode string) bool {
	return statusCode == statusApproved || statusCode == statusApprovedShort
}

type Client struct {
	baseURL       string
	terminal      string
	user          string
	password      string
	publicBaseURL string
	http          *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:       cfg.PelecardBaseURL,
		terminal:      cfg.PelecardTerminal,
		user:          cfg.PelecardUser,
		password:      cfg.PelecardPassword,
		publicBaseURL: cfg.PublicBaseURL,
		// A hanging gateway call here blocks the webhook acknowledgment
		// and invites gateway-side retries, so the bound stays tight.
		http: &http.Client{Timeout: 8 * time.Second},
	}
}

type initRequest struct {
	Terminal                  string `json:"terminal"`
	User                      string `json:"user"`
	Password                  string `json:"password"`
	ActionType                string `json:"ActionType"`
	Currency                  string `json:"Currency"`
	FreeTotal                 string `json:"FreeTotal"`
	MinPayments               string `json:"MinPayments"`
	MaxPayments               string `json:"MaxPayments"`
	GoodURL                   string `json:"GoodURL"`
	ErrorURL                  string `json:"ErrorURL"`
	ServerSideGoodFeedbackURL string `json:"ServerSideGoodFeedbackURL"`
	ParamX                    string `json:"ParamX"`
}

type initResponse struct {
	URL   string `json:"URL"`
	Error struct {
		ErrCode int    `json:"ErrCode"`
		ErrMsg  string `json:"ErrMsg"`
	} `json:"Error"`
}

// InitPayment opens a hosted payment session for a registration and
// returns the page URL to redirect the end user to. The registration id
// rides along as ParamX and comes back on every callback.
func (c *Client) InitPayment(regID string) (string, error) {
	req := initRequest{
		Terminal:                  c.terminal,
		User:                      c.user,
		Password:                  c.password,
		ActionType:                "J4",
		Currency:                  "1", // ILS
		FreeTotal:                 "True",
		MinPayments:               "1",
		MaxPayments:               "12",
		GoodURL:                   c.publicBaseURL + "/callback?Status=success&RegID=" + url.QueryEscape(regID),
		ErrorURL:                  c.publicBaseURL + "/callback?Status=error&RegID=" + url.QueryEscape(regID),
		ServerSideGoodFeedbackURL: c.publicBaseURL + "/pelecard-callback",
		ParamX:                    regID,
	}

	body, err := c.post("/init", req)
	if err != nil {
		return "", &domain.GatewayError{Msg: "init payment session", Err: err}
	}

	var resp initResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &domain.GatewayError{Msg: "decode init response: " + string(body), Err: err}
	}
	if resp.URL == "" {
		msg := resp.Error.ErrMsg
		if msg == "" {
			msg = string(body)
		}
		return "", &domain.GatewayError{Msg: "gateway returned no payment URL: " + msg}
	}
	return resp.URL, nil
}

type getTransactionRequest struct {
	Terminal      string `json:"terminal"`
	User          string `json:"user"`
	Password      string `json:"password"`
	TransactionID string `json:"TransactionId"`
}

type getTransactionResponse struct {
	ResultData map[string]any `json:"ResultData"`
}

// GetTransaction looks up full transaction details by gateway transaction
// id. It is best-effort enrichment: any transport, status or parse failure
// yields nil, never an error.
func (c *Client) GetTransaction(transactionID string) *domain.PaymentNotification {
	body, err := c.post("/GetTransaction", getTransactionRequest{
		Terminal:      c.terminal,
		User:          c.user,
		Password:      c.password,
		TransactionID: transactionID,
	})
	if err != nil {
		return nil
	}

	var resp getTransactionResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.ResultData) == 0 {
		return nil
	}

	n := domain.PaymentNotification{Fields: make(map[string]string, len(resp.ResultData))}
	for k, v := range resp.ResultData {
		n.Fields[k] = stringify(v)
	}
	return &n
}

func (c *Client) post(path string, payload any) ([]byte, error) {
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
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, body)
	}
	return body, nil
}

// stringify flattens a decoded JSON value into the string form the
// notification field tables expect. Whole floats drop their ".0" so minor
// unit amounts parse as integers.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%t", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
