package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketledger-backend/api/routes"
	"github.com/angelmondragon/marketledger-backend/internal/bootstrap"
	checkoutsvc "github.com/angelmondragon/marketledger-backend/internal/checkout"
	"github.com/angelmondragon/marketledger-backend/internal/commissions"
	"github.com/angelmondragon/marketledger-backend/internal/giftcards"
	"github.com/angelmondragon/marketledger-backend/internal/loyalty"
	"github.com/angelmondragon/marketledger-backend/internal/notifications"
	"github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/internal/products"
	"github.com/angelmondragon/marketledger-backend/internal/vendors"
	paymentswebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/payments"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}

const shutdownGrace = 15 * time.Second

func run() error {
	rt, err := bootstrap.Load("api")
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	ctx, stop := rt.SignalContext()
	defer stop()

	dbClient, err := rt.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}

	gormDB := dbClient.DB()
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	productRepo := products.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)
	vendorRepo := vendors.NewRepository(gormDB)

	notifier, err := notifications.NewOutboxNotifier(dbClient, outboxService, logg)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	loyaltyService, err := loyalty.NewService(dbClient, loyalty.NewRepository(gormDB), logg)
	if err != nil {
		return fmt.Errorf("loyalty service: %w", err)
	}

	giftCardService, err := giftcards.NewService(giftcards.ServiceParams{
		TX:       dbClient,
		Repo:     giftcards.NewRepository(gormDB),
		Currency: cfg.Settlement.Currency,
		Logger:   logg,
		Now:      time.Now,
	})
	if err != nil {
		return fmt.Errorf("gift card service: %w", err)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		TX:        dbClient,
		Products:  productRepo,
		Orders:    orderRepo,
		Loyalty:   loyaltyService,
		GiftCards: giftCardService,
		Outbox:    outboxService,
		Notifier:  notifier,
		Pricing: checkoutsvc.Pricing{
			TaxRate:      cfg.Settlement.TaxRate,
			ShippingFlat: cfg.Settlement.ShippingFlat,
			Currency:     cfg.Settlement.Currency,
		},
		Metrics: settlementMetrics,
		Logger:  logg,
		Now:     time.Now,
	})
	if err != nil {
		return fmt.Errorf("checkout service: %w", err)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		TX:        dbClient,
		Repo:      orderRepo,
		Products:  productRepo,
		Loyalty:   loyaltyService,
		GiftCards: giftCardService,
		Outbox:    outboxService,
		Notifier:  notifier,
		Logger:    logg,
		Now:       time.Now,
	})
	if err != nil {
		return fmt.Errorf("orders service: %w", err)
	}

	commissionService, err := commissions.NewService(commissions.ServiceParams{
		TX:          dbClient,
		Repo:        commissions.NewRepository(gormDB),
		Orders:      orderRepo,
		Vendors:     vendorRepo,
		DefaultRate: cfg.Settlement.DefaultCommissionRate,
		Metrics:     settlementMetrics,
		Logger:      logg,
	})
	if err != nil {
		return fmt.Errorf("commission service: %w", err)
	}

	payoutService, err := payouts.NewService(payouts.ServiceParams{
		TX:       dbClient,
		Repo:     payouts.NewRepository(gormDB),
		Vendors:  vendorRepo,
		Outbox:   outboxService,
		Currency: cfg.Settlement.Currency,
		Metrics:  settlementMetrics,
		Logger:   logg,
		Now:      time.Now,
	})
	if err != nil {
		return fmt.Errorf("payout service: %w", err)
	}

	paymentWebhookService, err := paymentswebhook.NewService(paymentswebhook.ServiceParams{
		Orders:      ordersService,
		Commissions: commissionService,
		Logger:      logg,
	})
	if err != nil {
		return fmt.Errorf("payment webhook service: %w", err)
	}
	paymentWebhookGuard, err := paymentswebhook.NewIdempotencyGuard(redisClient, cfg.PaymentWebhook.IdempotencyTTL, "payment-webhook")
	if err != nil {
		return fmt.Errorf("payment webhook guard: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			loyaltyService,
			giftCardService,
			ordersService,
			commissionService,
			payoutService,
			paymentWebhookService,
			paymentWebhookGuard,
			outbox.NewDLQRepository(gormDB),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "api.starting")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api.stopped", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logg.Info(ctx, "api.shutdown")
	return nil
}
