package handlers

import (
	"net/http"
	"strings"

	"bankledger/internal/config"
	"bankledger/internal/db"
	"bankledger/internal/middleware"
	"bankledger/internal/observability"
	"bankledger/internal/services"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	txRunner db.TxRunner
	cfg      config.Config
	users    UserStore
	admin    AdminStore
	audit    AuditStore
	ledger   LedgerService
	loans    LoanService
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, admin AdminStore, audit AuditStore, ledger LedgerService, loans LoanService, hub *websocket.Hub, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Handler{
		txRunner: txRunner,
		cfg:      cfg,
		users:    users,
		admin:    admin,
		audit:    audit,
		ledger:   ledger,
		loans:    loans,
		hub:      hub,
		upgrader: websocket.Upgrader(allowedOrigins(cfg.AllowedOrigins)),
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *Handler) Routes() http.Handler {
	authenticated := middleware.Auth(h.cfg.JWTSecret)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(observability.ZapLoggerMiddleware(h.logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(observability.TracingMiddleware)
	router.Use(h.metrics.HTTPMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(h.cfg.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(authenticated, withActor).Get("/me", h.Me)
	})

	router.Route("/accounts", func(r chi.Router) {
		r.Use(authenticated, withActor)
		r.Get("/", h.ListAccounts)
		r.Post("/", h.CreateAccount)
		r.Post("/transfer", h.Transfer)
		r.Get("/{id}", h.GetAccount)
		r.Put("/{id}", h.UpdateAccount)
		r.Post("/{id}/close", h.CloseAccount)
		r.Post("/{id}/deposit", h.Deposit)
		r.Post("/{id}/withdraw", h.Withdraw)
		r.Get("/{id}/transactions", h.ListAccountTransactions)
	})

	router.Route("/transactions", func(r chi.Router) {
		r.Use(authenticated, withActor)
		r.Get("/", h.ListTransactions)
		r.Get("/{id}", h.GetTransaction)
	})

	router.Route("/loans", func(r chi.Router) {
		r.Use(authenticated, withActor)
		r.Get("/", h.ListLoans)
		r.Post("/", h.ApplyForLoan)
		r.Get("/{id}", h.GetLoan)
		r.Put("/{id}", h.UpdateLoan)
		r.Post("/{id}/payment", h.MakePayment)
		r.Get("/{id}/payment-amount", h.PaymentAmount)

		manageLoans := middleware.RequireAdmin(h.admin, store.RoleCanManageLoans)
		r.With(manageLoans).Post("/{id}/approve", h.ApproveLoan)
		r.With(manageLoans).Post("/{id}/reject", h.RejectLoan)
		r.With(manageLoans).Post("/{id}/activate", h.ActivateLoan)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticated, withActor)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageLoans)).Get("/loans", h.AdminListLoans)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanViewAudit)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageAdmins)).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, store.RoleCanManageAdmins)).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/users/username/{username}", h.GetUserByUsername)
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/users/email/{email}", h.GetUserByEmail)
	})

	router.Get("/ws/balances", h.WSBalances)
	router.Handle("/metrics", h.metrics.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

// withActor tags the request context with the authenticated user so audit
// rows written by the services name them.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(services.WithActor(r.Context(), userID)))
	})
}

func allowedOrigins(raw string) []string {
	origins := []string{}
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
