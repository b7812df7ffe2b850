package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketledger-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/orders"
	payoutcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/payouts"
	webhookcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketledger-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/marketledger-backend/internal/checkout"
	"github.com/angelmondragon/marketledger-backend/internal/commissions"
	"github.com/angelmondragon/marketledger-backend/internal/giftcards"
	"github.com/angelmondragon/marketledger-backend/internal/loyalty"
	"github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	paymentswebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/payments"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/marketledger-backend/pkg/redis"
)

// CacheStore is the Redis surface the HTTP layer needs: idempotency records,
// rate-limit counters and a readiness ping.
type CacheStore interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	cache CacheStore,
	checkoutService checkoutsvc.Service,
	loyaltyService loyalty.Service,
	giftCardService giftcards.Service,
	ordersService orders.Service,
	commissionService commissions.Service,
	payoutService payouts.Service,
	paymentWebhookService webhookcontrollers.PaymentWebhookService,
	paymentWebhookGuard *paymentswebhook.IdempotencyGuard,
	deadLetters controllers.DeadLetterStore,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, cfg.RateLimit.CheckoutLimit)
	giftCardPolicy := middleware.NewRateLimitPolicy("gift_card", cfg.RateLimit.Window, cfg.RateLimit.GiftCardLimit)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          middleware.RateLimiterStore
	)
	checks := []controllers.ReadinessCheck{{Name: "postgres", Ping: dbP.Ping}}
	if cache != nil {
		idempotencyStore = cache
		limiter = cache
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Ping: cache.Ping})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks...))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(paymentWebhookService, cfg.PaymentWebhook.Secret, paymentWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.With(middleware.RateLimit(checkoutPolicy, limiter, logg)).Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersService, logg))
		})

		r.Route("/loyalty", func(r chi.Router) {
			r.Get("/", controllers.LoyaltyAccount(loyaltyService, logg))
			r.Get("/transactions", controllers.LoyaltyTransactions(loyaltyService, logg))
		})

		r.Route("/gift-cards", func(r chi.Router) {
			r.Post("/", controllers.IssueGiftCard(giftCardService, logg))
			r.With(middleware.RateLimit(giftCardPolicy, limiter, logg)).Get("/{code}", controllers.GiftCardBalance(giftCardService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/status", ordercontrollers.AdminUpdateStatus(ordersService, logg))
			r.Post("/refund", ordercontrollers.AdminRefund(ordersService, logg))
			r.Post("/commissions", ordercontrollers.AdminCommissions(commissionService, logg))
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", payoutcontrollers.List(payoutService, logg))
			r.Post("/run", payoutcontrollers.Run(payoutService, time.Now, logg))
			r.Post("/{payoutId}/mark-paid", payoutcontrollers.MarkPaid(payoutService, logg))
		})

		r.Route("/vendors/{vendorId}", func(r chi.Router) {
			r.Get("/commission", payoutcontrollers.MonthEndCommission(payoutService, logg))
			r.Post("/statements", payoutcontrollers.GenerateStatement(payoutService, logg))
		})

		r.Route("/outbox/dead-letters", func(r chi.Router) {
			r.Get("/", controllers.ListDeadLetters(deadLetters, logg))
			r.Post("/{deadLetterId}/requeue", controllers.RequeueDeadLetter(deadLetters, logg))
		})
	})

	return r
}
