package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/regpay/bridge/internal/config"
	"github.com/regpay/bridge/internal/reconcile"
	"github.com/regpay/bridge/internal/store"
	"github.com/regpay/bridge/internal/summit"
)

// PaymentGateway is the slice of the gateway client the handlers need.
type PaymentGateway interface {
	InitPayment(regID string) (string, error)
}

// NewRouter creates the Chi router with all routes mounted.
func NewRouter(
	cfg *config.Config,
	regStore *store.Store,
	gateway PaymentGateway,
	accounting *summit.Client,
	reconciler *reconcile.Service,
) http.Handler {
	h := &Handlers{
		cfg:        cfg,
		store:      regStore,
		gateway:    gateway,
		accounting: accounting,
		reconciler: reconciler,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.InitSession)
	r.Post("/pelecard-callback", h.PelecardWebhook)
	r.Get("/callback", h.UserRedirect)
	r.Post("/summit", h.CreateDocumentDirect)
	r.Get("/summit-from-sf", h.CreateDocumentFromCRM)

	return r
}
