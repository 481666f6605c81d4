package main

import (
	"log"
	"net/http"

	"github.com/regpay/bridge/internal/api"
	"github.com/regpay/bridge/internal/config"
	"github.com/regpay/bridge/internal/pelecard"
	"github.com/regpay/bridge/internal/reconcile"
	"github.com/regpay/bridge/internal/store"
	"github.com/regpay/bridge/internal/summit"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Printf("Initializing registration store at %s", cfg.DBPath)
	regStore, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer regStore.Close()

	gateway := pelecard.NewClient(cfg)
	accounting := summit.NewClient(cfg)
	reconciler := reconcile.NewService(regStore, gateway, accounting, cfg.DefaultSKU, cfg.ItemDescription)

	router := api.NewRouter(cfg, regStore, gateway, accounting, reconciler)

	log.Printf("Pelecard/Summit payment bridge")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  GET    /                   (start payment session)")
	log.Printf("  POST   /pelecard-callback  (gateway webhook)")
	log.Printf("  GET    /callback           (user return leg)")
	log.Printf("  POST   /summit             (direct document creation)")
	log.Printf("  GET    /summit-from-sf     (CRM document creation)")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
