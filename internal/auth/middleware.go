package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TokenCookie: имя cookie с токеном сессии.
const TokenCookie = "storefront_token"

type contextKey string

const claimsContextKey = contextKey("claims")

// WithClaims кладёт claims в контекст.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext достаёт claims, положенные middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// BearerToken извлекает токен из заголовка Authorization ("Bearer <token>").
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware строит HTTP-middleware поверх Tokens. onError пишет ответ при отказе.
type Middleware struct {
	tokens  *Tokens
	onError func(w http.ResponseWriter, r *http.Request, err error)
}

// NewMiddleware создаёт middleware.
func NewMiddleware(tokens *Tokens, onError func(w http.ResponseWriter, r *http.Request, err error)) *Middleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return &Middleware{tokens: tokens, onError: onError}
}

// Identify кладёт claims в контекст, если запрос несёт валидный токен.
// Анонимные запросы пропускаются без изменений.
func (m *Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := m.tokens.Parse(requestToken(r)); err == nil {
			r = r.WithContext(WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth пропускает только запросы с валидным токеном.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			parsed, err := m.tokens.Parse(requestToken(r))
			if err != nil {
				m.onError(w, r, err)
				return
			}
			claims = parsed
			r = r.WithContext(WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin пропускает только администраторов.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		if !claims.IsAdmin() {
			m.onError(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func requestToken(r *http.Request) string {
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}
