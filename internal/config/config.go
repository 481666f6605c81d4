package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultPelecardBaseURL = "https://gateway20.pelecard.biz/PaymentGW"
	defaultSummitBaseURL   = "https://app.sumit.co.il"
)

// Config is built once at startup and passed by reference into every
// component. It never changes after FromEnv returns.
type Config struct {
	Port   string
	DBPath string

	SummitCompanyID int
	SummitAPIKey    string
	SummitBaseURL   string

	PelecardTerminal string
	PelecardUser     string
	PelecardPassword string
	PelecardBaseURL  string

	// PublicBaseURL is this service's externally reachable base, used to
	// build the gateway's success/error/webhook callback URLs.
	PublicBaseURL  string
	ResultsPageURL string
	CRMRedirectURL string

	DefaultSKU      string
	ItemDescription string
}

// FromEnv reads the environment and validates required fields, returning a
// single error naming everything that is missing. Per-call env checks are
// deliberately avoided: a misconfigured instance must not come up at all.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:             envDefault("PORT", "8080"),
		DBPath:           envDefault("DB_PATH", "registrations.db"),
		SummitAPIKey:     os.Getenv("SUMMIT_API_KEY"),
		SummitBaseURL:    envDefault("SUMMIT_BASE_URL", defaultSummitBaseURL),
		PelecardTerminal: os.Getenv("PELECARD_TERMINAL"),
		PelecardUser:     os.Getenv("PELECARD_USER"),
		PelecardPassword: os.Getenv("PELECARD_PASSWORD"),
		PelecardBaseURL:  envDefault("PELECARD_BASE_URL", defaultPelecardBaseURL),
		PublicBaseURL:    envDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		ResultsPageURL:   os.Getenv("RESULTS_PAGE_URL"),
		CRMRedirectURL:   os.Getenv("CRM_REDIRECT_URL"),
		DefaultSKU:       envDefault("SUMMIT_DEFAULT_SKU", "1"),
		ItemDescription:  envDefault("SUMMIT_ITEM_DESCRIPTION", "השגחה בטיפול פוריות"),
	}

	companyID := os.Getenv("SUMMIT_COMPANY_ID")
	if companyID == "" || cfg.SummitAPIKey == "" {
		return nil, fmt.Errorf("Missing Summit credentials in env variables")
	}
	id, err := strconv.Atoi(companyID)
	if err != nil {
		return nil, fmt.Errorf("SUMMIT_COMPANY_ID must be numeric: %w", err)
	}
	cfg.SummitCompanyID = id

	var missing []string
	if cfg.PelecardTerminal == "" {
		missing = append(missing, "PELECARD_TERMINAL")
	}
	if cfg.PelecardUser == "" {
		missing = append(missing, "PELECARD_USER")
	}
	if cfg.PelecardPassword == "" {
		missing = append(missing, "PELECARD_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing Pelecard credentials in env variables: %s",
			strings.Join(missing, ", "))
	}

	return cfg, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
