package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fulfillment-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/orders"
	returncontrollers "github.com/angelmondragon/fulfillment-backend/api/controllers/returns"
	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/internal/orders"
	"github.com/angelmondragon/fulfillment-backend/internal/returns"
	"github.com/angelmondragon/fulfillment-backend/pkg/auth/session"
	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	sessionChecker session.AccessSessionChecker,
	ordersSvc orders.Service,
	returnsSvc returns.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// A nil client must reach the middleware as a nil interface.
	var (
		idempotencyStore redis.IdempotencyStore
		redisPinger      controllers.Pinger
		otpLimiter       = middleware.OTPRateLimit(middleware.NewOTPRateLimitPolicy(0, 0, 0), nil, logg)
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		redisPinger = redisClient
		otpPolicy := middleware.NewOTPRateLimitPolicy(
			cfg.RateLimit.OTPWindow,
			cfg.RateLimit.OTPCallerLimit,
			cfg.RateLimit.OTPOrderLimit,
		)
		otpLimiter = middleware.OTPRateLimit(otpPolicy, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisPinger,
		}))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionChecker, logg))
		idem := middleware.Idempotent(idempotencyStore, cfg.Eventing.IdempotencyTTL, logg)

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireAction(access.ActionOrderCreate, logg), idem).Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.With(middleware.RequireAction(access.ActionOrderRead, logg)).Get("/{id}", ordercontrollers.Get(ordersSvc, logg))
			// The permitted role depends on the target status, so the service gates it.
			r.With(otpLimiter, idem).Post("/{id}/status", ordercontrollers.UpdateStatus(ordersSvc, logg))
		})

		r.Route("/returns", func(r chi.Router) {
			gate := func(action access.Action) func(http.Handler) http.Handler {
				return middleware.RequireAction(action, logg)
			}
			r.With(gate(access.ActionReturnCreate), idem).Post("/", returncontrollers.Create(returnsSvc, logg))
			r.With(gate(access.ActionReturnList)).Get("/", returncontrollers.List(returnsSvc, logg))
			r.With(gate(access.ActionReturnRead)).Get("/{id}", returncontrollers.Get(returnsSvc, logg))
			r.With(gate(access.ActionReturnRead)).Get("/{id}/history", returncontrollers.History(returnsSvc, logg))

			r.With(gate(access.ActionReturnStartReview), idem).Put("/{id}/start-review", returncontrollers.StartReview(returnsSvc, logg))
			r.With(gate(access.ActionReturnReview), idem).Put("/{id}/review", returncontrollers.Review(returnsSvc, logg))
			r.With(gate(access.ActionReturnAssignWarehouse), idem).Put("/{id}/assign-warehouse", returncontrollers.AssignWarehouse(returnsSvc, logg))
			r.With(gate(access.ActionReturnSchedulePickup), idem).Put("/{id}/schedule-pickup", returncontrollers.SchedulePickup(returnsSvc, logg))
			r.With(gate(access.ActionReturnMarkPickedUp), idem).Put("/{id}/picked-up", returncontrollers.MarkPickedUp(returnsSvc, logg))
			r.With(gate(access.ActionReturnReceive), idem).Put("/{id}/receive", returncontrollers.Receive(returnsSvc, logg))
			r.With(gate(access.ActionReturnAssess), idem).Put("/{id}/assess", returncontrollers.Assess(returnsSvc, logg))
			r.With(gate(access.ActionReturnFinalDecision), idem).Put("/{id}/final-decision", returncontrollers.FinalDecision(returnsSvc, logg))
			r.With(gate(access.ActionReturnProcessRefund), idem).Post("/{id}/process-refund", returncontrollers.ProcessRefund(returnsSvc, logg))
			r.With(gate(access.ActionReturnComplete), idem).Put("/{id}/complete", returncontrollers.Complete(returnsSvc, logg))
			r.With(gate(access.ActionReturnPickupCharge), idem).Put("/{id}/pickup-charge", returncontrollers.UpdatePickupCharge(returnsSvc, logg))
			r.With(gate(access.ActionReturnCancel), idem).Put("/{id}/cancel", returncontrollers.Cancel(returnsSvc, logg))
		})

		r.Post("/refunds/quote", controllers.RefundQuote(logg))
	})

	return r
}
