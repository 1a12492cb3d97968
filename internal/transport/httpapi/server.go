// Package httpapi: JSON API витрины поверх gorilla/mux.
package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/admin"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

const (
	// CartCookie: cookie с идентификатором корзины.
	CartCookie = "storefront_cart"
	// IdempotencyHeader: заголовок с ключом идемпотентности оформления.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader выставляется, когда ответ взят из кэша идемпотентности.
	ReplayedHeader = "Idempotency-Replayed"

	cartCookieMaxAge = 30 * 24 * time.Hour
)

// Dependencies: сервисы, которые обслуживает HTTP API.
type Dependencies struct {
	Catalog  *catalog.Service
	Carts    *cart.Service
	Auth     *auth.Service
	Checkout *checkout.Service
	Admin    *admin.Service
}

// Server собирает маршруты и middleware.
type Server struct {
	deps          Dependencies
	router        *mux.Router
	middleware    *auth.Middleware
	logger        *log.Entry
	secureCookies bool
	newSessionID  func() string
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSecureCookies включает флаг Secure у выдаваемых cookie.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) {
		s.secureCookies = secure
	}
}

// WithSessionIDGenerator подменяет генератор идентификаторов корзин.
func WithSessionIDGenerator(fn func() string) Option {
	return func(s *Server) {
		if fn != nil {
			s.newSessionID = fn
		}
	}
}

// NewServer создаёт HTTP API.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		router:       mux.NewRouter(),
		logger:       log.New().WithField("component", "http-api"),
		newSessionID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.middleware = auth.NewMiddleware(deps.Auth.Tokens(), func(w http.ResponseWriter, r *http.Request, err error) {
		s.writeError(w, r, err)
	})
	s.routes()
	return s
}

// Handler возвращает корневой http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.recoverPanics, s.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.middleware.Identify)

	// Auth
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/session", s.currentSession).Methods(http.MethodGet)

	// Catalog
	api.HandleFunc("/products", s.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.listCategories).Methods(http.MethodGet)

	// Cart
	api.HandleFunc("/cart", s.getCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", s.clearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", s.addCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", s.updateCartItem).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{id}", s.removeCartItem).Methods(http.MethodDelete)

	// Checkout
	api.Handle("/checkout", s.middleware.RequireAuth(http.HandlerFunc(s.checkout))).Methods(http.MethodPost)

	// Back-office
	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Use(s.middleware.RequireAdmin)
	adminRouter.HandleFunc("/products", s.createProduct).Methods(http.MethodPost)
	adminRouter.HandleFunc("/products/{id}", s.updateProduct).Methods(http.MethodPut)
	adminRouter.HandleFunc("/products/{id}", s.deleteProduct).Methods(http.MethodDelete)
	adminRouter.HandleFunc("/orders", s.listOrders).Methods(http.MethodGet)
	adminRouter.HandleFunc("/orders/{id}", s.getOrder).Methods(http.MethodGet)
	adminRouter.HandleFunc("/sales", s.salesReport).Methods(http.MethodGet)
	adminRouter.HandleFunc("/customers", s.listCustomers).Methods(http.MethodGet)
}

// cartSession возвращает id корзины из cookie, выдавая новый при его отсутствии.
func (s *Server) cartSession(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(CartCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := s.newSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     CartCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cartCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http request")
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithFields(log.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  rec,
				}).Error("panic in http handler")
				writeErr(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
