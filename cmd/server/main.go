package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dovepay/config"
	"dovepay/internal/auth"
	"dovepay/internal/database"
	"dovepay/internal/middleware"
	"dovepay/internal/repository"
	"dovepay/internal/router"
	"dovepay/internal/service"
	"dovepay/pkg/payment"
)

func main() {
	cfg := config.Load()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer closeStore()

	gateway := newGateway(&cfg.Mpesa)
	authn, err := auth.NewAdminAuthenticator(&cfg.Admin)
	if err != nil {
		log.Fatalf("admin auth: %v", err)
	}
	if !authn.Enabled() {
		log.Printf("[ADMIN] dashboard disabled: set ADMIN_PASSWORD (or ADMIN_PASSWORD_HASH) and ADMIN_SECRET")
	}

	payments := service.NewPaymentService(gateway, store, service.NewNotificationService(cfg.SMTP))
	limiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	defer limiter.Close()

	engine := router.Setup(cfg, payments, authn, limiter)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	fmt.Println("server stopped")
}

func openStore(cfg *config.Config) (service.TransactionStore, func(), error) {
	switch cfg.Database.Driver {
	case "mongo":
		client, err := database.NewMongo(context.Background(), &cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoTransactionRepository(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
		if err := repo.EnsureIndexes(context.Background()); err != nil {
			log.Printf("[DB] ensure indexes: %v", err)
		}
		return repo, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Printf("[DB] disconnect: %v", err)
			}
		}, nil
	case "mysql", "":
		db, err := database.NewDB(&cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repository.NewTransactionRepository(db), func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.Database.Driver)
}

func newGateway(cfg *config.MpesaConfig) payment.Provider {
	if cfg.Env == "stub" {
		log.Printf("[MPESA] using stub gateway; no pushes reach Safaricom")
		return &payment.StubProvider{}
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		log.Printf("[MPESA] configuration incomplete, missing: %v", missing)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = payment.DarajaProductionURL
		if cfg.Env == "sandbox" {
			baseURL = payment.DarajaSandboxURL
		}
	}
	log.Printf("[MPESA] env=%s base_url=%s shortcode=%s callback=%s", cfg.Env, baseURL, cfg.Shortcode, cfg.CallbackURL)
	return payment.NewDarajaProvider(payment.DarajaConfig{
		BaseURL:        baseURL,
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		Shortcode:      cfg.Shortcode,
		Passkey:        cfg.Passkey,
		PartyB:         cfg.PartyB,
		CallbackURL:    cfg.CallbackURL,
		Timeout:        cfg.Timeout,
	})
}
