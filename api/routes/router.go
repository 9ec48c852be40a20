package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cautela-backend/api/controllers"
	"github.com/angelmondragon/cautela-backend/api/middleware"
	"github.com/angelmondragon/cautela-backend/internal/auth"
	"github.com/angelmondragon/cautela-backend/internal/custody"
	"github.com/angelmondragon/cautela-backend/internal/operators"
	"github.com/angelmondragon/cautela-backend/pkg/auth/session"
	"github.com/angelmondragon/cautela-backend/pkg/config"
	"github.com/angelmondragon/cautela-backend/pkg/db"
	"github.com/angelmondragon/cautela-backend/pkg/enums"
	"github.com/angelmondragon/cautela-backend/pkg/logger"
	"github.com/angelmondragon/cautela-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	verifier session.Verifier,
	authService auth.Service,
	operatorsService operators.Service,
	custodyService custody.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	// A nil *redis.Client must not leak into the interfaces below as a
	// non-nil value.
	var idempotencyStore redis.IdempotencyStore
	var rateLimitStore *redis.Client
	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}
	if redisClient != nil {
		idempotencyStore = redisClient
		rateLimitStore = redisClient
		readiness["redis"] = redisClient
	}

	loginPolicy := middleware.NewRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginIdentityLimit,
	)
	publicPolicy := middleware.NewRateLimitPolicy(
		"public",
		cfg.AuthRateLimit.PublicWindow,
		cfg.AuthRateLimit.PublicIPLimit,
		0,
	)
	baseURL := cfg.Custody.PublicBaseURL

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public/v1/custody/{linkToken}", func(r chi.Router) {
		r.Use(rateLimit(publicPolicy, rateLimitStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/", controllers.PublicGetCustody(custodyService, logg))
		r.Post("/signatures", controllers.PublicSubmitSignature(custodyService, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(rateLimit(loginPolicy, rateLimitStore, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(verifier, logg))
			r.Post("/logout", controllers.AuthLogout(authService, logg))
			r.Get("/verify", controllers.AuthVerify(operatorsService, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/custody-records", func(r chi.Router) {
			r.Get("/", controllers.ListCustodyRecords(custodyService, logg))
			r.Post("/", controllers.CreateCustodyRecord(custodyService, baseURL, logg))
			r.Route("/{recordId}", func(r chi.Router) {
				r.Get("/", controllers.GetCustodyRecord(custodyService, baseURL, logg))
				r.Get("/signatures", controllers.ListCustodySignatures(custodyService, logg))
				r.Post("/initiate-return", controllers.InitiateCustodyReturn(custodyService, baseURL, logg))
				r.Post("/cancel", controllers.CancelCustodyRecord(custodyService, baseURL, logg))
			})
		})

		r.Route("/admin/operators", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.OperatorRoleAdmin, logg))
			r.Get("/", controllers.AdminListOperators(operatorsService, logg))
			r.Post("/", controllers.AdminCreateOperator(operatorsService, logg))
			r.Route("/{operatorId}", func(r chi.Router) {
				r.Get("/", controllers.AdminGetOperator(operatorsService, logg))
				r.Patch("/", controllers.AdminUpdateOperator(operatorsService, logg))
				r.Put("/password", controllers.AdminSetOperatorPassword(operatorsService, logg))
			})
		})
	})

	return r
}

func rateLimit(policy middleware.RateLimitPolicy, store *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(policy, store, logg)
}
