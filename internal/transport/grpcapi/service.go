// Package grpcapi открывает корзину и оформление заказа по gRPC.
// Сообщения кодируются JSON-кодеком, сессия передаётся в метаданных session-id.
package grpcapi

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

const (
	ServiceName = "storefront.v1.CartService"

	MethodLogin          = "/" + ServiceName + "/Login"
	MethodGetCart        = "/" + ServiceName + "/GetCart"
	MethodAddItem        = "/" + ServiceName + "/AddItem"
	MethodUpdateQuantity = "/" + ServiceName + "/UpdateQuantity"
	MethodRemoveItem     = "/" + ServiceName + "/RemoveItem"
	MethodClearCart      = "/" + ServiceName + "/ClearCart"
	MethodCheckout       = "/" + ServiceName + "/Checkout"

	sessionHeader        = "session-id"
	authorizationHeader  = "authorization"
	idempotencyKeyHeader = "idempotency-key"
	replayedHeader       = "idempotency-replayed"
)

// CartServiceServer: серверная часть CartService.
type CartServiceServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	GetCart(context.Context, *GetCartRequest) (*Cart, error)
	AddItem(context.Context, *AddItemRequest) (*Cart, error)
	UpdateQuantity(context.Context, *UpdateQuantityRequest) (*Cart, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*Cart, error)
	ClearCart(context.Context, *ClearCartRequest) (*Cart, error)
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
}

// Service реализует CartServiceServer поверх сервисов корзины, входа и оформления.
type Service struct {
	carts    *cart.Service
	auth     *auth.Service
	checkout *checkout.Service
	logger   *log.Entry
}

// NewService конструирует сервис с зависимостями.
func NewService(carts *cart.Service, authSvc *auth.Service, checkoutSvc *checkout.Service, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "grpc-cart-service")
	}
	return &Service{carts: carts, auth: authSvc, checkout: checkoutSvc, logger: logger}
}

// Login выпускает токен для вызова Checkout.
func (s *Service) Login(_ context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req == nil || req.Email == "" {
		return nil, status.Error(codes.InvalidArgument, "email is required")
	}
	session, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(err, "Login")
	}
	return &LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Email:     session.Account.Email,
		Role:      string(session.Account.Role),
	}, nil
}

// GetCart возвращает корзину сессии.
func (s *Service) GetCart(ctx context.Context, _ *GetCartRequest) (*Cart, error) {
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.carts.View(ctx, sessionID)
	if err != nil {
		return nil, s.toStatus(err, "GetCart")
	}
	return toCart(sessionID, snap), nil
}

// AddItem добавляет товар; количество молча ограничивается остатком.
func (s *Service) AddItem(ctx context.Context, req *AddItemRequest) (*Cart, error) {
	if req == nil || req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.carts.Add(ctx, sessionID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, s.toStatus(err, "AddItem")
	}
	return toCart(sessionID, snap), nil
}

// UpdateQuantity задаёт количество; неизвестная строка не меняет корзину.
func (s *Service) UpdateQuantity(ctx context.Context, req *UpdateQuantityRequest) (*Cart, error) {
	if req == nil || req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.carts.Update(ctx, sessionID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, s.toStatus(err, "UpdateQuantity")
	}
	return toCart(sessionID, snap), nil
}

// RemoveItem удаляет строку корзины.
func (s *Service) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*Cart, error) {
	if req == nil || req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.carts.Remove(ctx, sessionID, req.ProductID)
	if err != nil {
		return nil, s.toStatus(err, "RemoveItem")
	}
	return toCart(sessionID, snap), nil
}

// ClearCart очищает корзину.
func (s *Service) ClearCart(ctx context.Context, _ *ClearCartRequest) (*Cart, error) {
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.carts.Clear(ctx, sessionID)
	if err != nil {
		return nil, s.toStatus(err, "ClearCart")
	}
	return toCart(sessionID, snap), nil
}

// Checkout оформляет заказ. Нужен bearer-токен; ключ идемпотентности опционален.
func (s *Service) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	sessionID, err := readSessionID(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := s.auth.Verify(readBearerToken(ctx))
	if err != nil {
		return nil, s.toStatus(err, "Checkout")
	}

	result, err := s.checkout.Checkout(ctx, checkout.Request{
		SessionID:      sessionID,
		CustomerEmail:  claims.Email,
		IdempotencyKey: readMetadata(ctx, idempotencyKeyHeader),
		Form:           req.Form,
	})
	if err != nil {
		return nil, s.toStatus(err, "Checkout")
	}
	if result.Replayed {
		if err := grpc.SetHeader(ctx, metadata.Pairs(replayedHeader, "true")); err != nil {
			s.logger.WithError(err).Debug("failed to set replay header")
		}
	}
	return &CheckoutResponse{Order: toOrder(result.Order), Replayed: result.Replayed}, nil
}

func (s *Service) toStatus(err error, operation string) error {
	code := codeForError(err)
	if code == codes.Internal {
		s.logger.WithError(err).WithField("operation", operation).Error("grpc call failed")
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func codeForError(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrSessionRequired),
		errors.Is(err, domain.ErrCheckoutFormIncomplete),
		errors.Is(err, domain.ErrIdempotencyKeyRequired),
		errors.Is(err, domain.ErrInvalidProduct):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPaymentDeclined):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return codes.Aborted
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return codes.Unauthenticated
	case errors.Is(err, domain.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrPaymentUnavailable):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func readMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func readSessionID(ctx context.Context) (string, error) {
	sessionID := readMetadata(ctx, sessionHeader)
	if sessionID == "" {
		return "", status.Error(codes.InvalidArgument, "session-id metadata is required")
	}
	return sessionID, nil
}

func readBearerToken(ctx context.Context) string {
	return auth.BearerToken(readMetadata(ctx, authorizationHeader))
}

// UnaryLoggingInterceptor пишет в лог неуспешные вызовы и перехватывает панику.
func UnaryLoggingInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithFields(log.Fields{"method": info.FullMethod, "panic": rec}).Error("grpc handler panic")
				err = status.Error(codes.Internal, "internal error")
			}
		}()

		resp, err = handler(ctx, req)
		if err != nil {
			logger.WithFields(log.Fields{
				"method": info.FullMethod,
				"code":   status.Code(err).String(),
			}).Debug("grpc call rejected")
		}
		return resp, err
	}
}

var _ CartServiceServer = (*Service)(nil)
