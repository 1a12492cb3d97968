package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// --- auth ---

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.deps.Auth.Login(req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	expiresAt := session.ExpiresAt
	writeJSON(w, http.StatusOK, sessionView{
		Token:     session.Token,
		ExpiresAt: &expiresAt,
		Account: accountView{
			Email: session.Account.Email,
			Name:  session.Account.Name,
			Role:  string(session.Account.Role),
		},
	})
}

// logout завершает сессию вместе с корзиной, cookie корзины истекает.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CartCookie); err == nil && cookie.Value != "" {
		if err := s.deps.Carts.Discard(r.Context(), cookie.Value); err != nil {
			s.logger.WithError(err).Warn("failed to discard cart on logout")
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CartCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}
	view := sessionView{Account: accountView{Email: claims.Email, Name: claims.Name, Role: claims.Role}}
	if claims.ExpiresAt > 0 {
		expiresAt := time.Unix(claims.ExpiresAt, 0).UTC()
		view.ExpiresAt = &expiresAt
	}
	writeJSON(w, http.StatusOK, view)
}

// --- catalog ---

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := s.deps.Catalog.List(r.Context(), domain.CatalogFilter{
		Category: query.Get("category"),
		Query:    query.Get("q"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductViews(items))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Catalog.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(item))
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.deps.Catalog.Categories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.deps.Catalog.Create(r.Context(), req.toDomain())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductView(created))
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	item := req.toDomain()
	item.ID = mux.Vars(r)["id"]

	updated, err := s.deps.Catalog.Update(r.Context(), item)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(updated))
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Catalog.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- cart ---

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	sessionID := s.cartSession(w, r)
	snap, err := s.deps.Carts.View(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(sessionID, snap))
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sessionID := s.cartSession(w, r)
	snap, err := s.deps.Carts.Add(r.Context(), sessionID, req.ProductID, req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(sessionID, snap))
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sessionID := s.cartSession(w, r)
	snap, err := s.deps.Carts.Update(r.Context(), sessionID, mux.Vars(r)["id"], req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(sessionID, snap))
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	sessionID := s.cartSession(w, r)
	snap, err := s.deps.Carts.Remove(r.Context(), sessionID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(sessionID, snap))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	sessionID := s.cartSession(w, r)
	snap, err := s.deps.Carts.Clear(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(sessionID, snap))
}

// --- checkout ---

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := decodeJSON(r, &form); err != nil {
		s.writeError(w, r, err)
		return
	}

	req := checkout.Request{
		SessionID:      s.cartSession(w, r),
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
		Form:           form,
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		req.CustomerEmail = claims.Email
	}

	result, err := s.deps.Checkout.Checkout(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeJSON(w, http.StatusCreated, toOrderView(result.Order))
}

// --- back-office reports ---

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.deps.Admin.Orders(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderViews(orders))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	details, err := s.deps.Admin.Order(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDetailsView(details))
}

func (s *Server) salesReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Admin.Sales(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSalesView(report))
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.deps.Admin.Customers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerViews(customers))
}
