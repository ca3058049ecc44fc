// Package api exposes the store over HTTP with gorilla/mux.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/rs/cors"
	"github.com/safar/smartgrocer/internal/auth"
	"github.com/safar/smartgrocer/internal/config"
	"github.com/safar/smartgrocer/internal/kv"
	"github.com/safar/smartgrocer/internal/notify"
	"github.com/safar/smartgrocer/internal/reminder"
	"github.com/safar/smartgrocer/internal/store"
)

type Server struct {
	db         *sqlx.DB
	kv         kv.Store
	sender     notify.Sender
	tokens     *auth.Tokens
	otp        *auth.OTP
	reminders  *reminder.Service
	limiter    *ipRateLimiter
	auth       config.AuthConfig
	clientURL  string
	production bool
	now        func() time.Time
}

func NewServer(cfg *config.Config, db *sqlx.DB, keys kv.Store, sender notify.Sender) *Server {
	return &Server{
		db:         db,
		kv:         keys,
		sender:     sender,
		tokens:     auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		otp:        auth.NewOTP(keys, sender, cfg.Auth.OTPTTL),
		reminders:  reminder.NewService(store.NewNotificationRepository(db), sender, cfg.Notification.OverdueThreshold()),
		limiter:    newIPRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst),
		auth:       cfg.Auth,
		clientURL:  cfg.Server.ClientURL,
		production: cfg.IsProduction(),
		now:        time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "route not found"})
	})

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.Handle("/send-otp", s.rateLimit(http.HandlerFunc(s.sendOTP))).Methods(http.MethodPost)
	a.Handle("/verify-otp", s.rateLimit(http.HandlerFunc(s.verifyOTP))).Methods(http.MethodPost)
	a.Handle("/me", s.protect(s.me)).Methods(http.MethodGet)

	p := r.PathPrefix("/products").Subrouter()
	p.HandleFunc("", s.listProducts).Methods(http.MethodGet)
	p.Handle("", s.manager(s.createProduct)).Methods(http.MethodPost)
	p.Handle("/low-stock", s.manager(s.lowStockProducts)).Methods(http.MethodGet)
	p.HandleFunc("/{id:[0-9]+}", s.getProduct).Methods(http.MethodGet)
	p.Handle("/{id:[0-9]+}", s.manager(s.updateProduct)).Methods(http.MethodPut)
	p.Handle("/{id:[0-9]+}", s.manager(s.deleteProduct)).Methods(http.MethodDelete)
	p.Handle("/{id:[0-9]+}/discount", s.manager(s.applyDiscount)).Methods(http.MethodPost)
	p.Handle("/{id:[0-9]+}/discount", s.manager(s.clearDiscount)).Methods(http.MethodDelete)

	o := r.PathPrefix("/orders").Subrouter()
	o.Handle("", s.authenticate(s.idempotent(http.HandlerFunc(s.placeOrder)))).Methods(http.MethodPost)
	o.Handle("", s.manager(s.listOrders)).Methods(http.MethodGet)
	o.Handle("/myorders", s.protect(s.myOrders)).Methods(http.MethodGet)
	o.Handle("/{id:[0-9]+}", s.protect(s.getOrder)).Methods(http.MethodGet)
	o.Handle("/{id:[0-9]+}/receipt", s.protect(s.orderReceipt)).Methods(http.MethodGet)

	t := r.PathPrefix("/transactions").Subrouter()
	t.Handle("/pay", s.authenticate(s.idempotent(http.HandlerFunc(s.payDues)))).Methods(http.MethodPost)
	t.Handle("/my", s.protect(s.myTransactions)).Methods(http.MethodGet)
	t.Handle("/dues", s.manager(s.debtors)).Methods(http.MethodGet)
	t.Handle("/user/{id:[0-9]+}", s.manager(s.userTransactions)).Methods(http.MethodGet)

	n := r.PathPrefix("/notifications").Subrouter()
	n.Handle("", s.protect(s.myNotifications)).Methods(http.MethodGet)
	n.Handle("/reminders", s.manager(s.sendReminders)).Methods(http.MethodPost)
	n.Handle("/token", s.protect(s.updateToken)).Methods(http.MethodPut)

	d := r.PathPrefix("/dashboard").Subrouter()
	d.Handle("/manager", s.manager(s.managerDashboard)).Methods(http.MethodGet)
	d.Handle("/customer", s.protect(s.customerDashboard)).Methods(http.MethodGet)

	r.Handle("/users", s.manager(s.listUsers)).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{s.clientURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", idempotencyHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: s.clientURL != "*",
	}).Handler(r)

	return logMiddleware(corsHandler)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
