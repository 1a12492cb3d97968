package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// Client: типизированный клиент CartService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient оборачивает соединение.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// WithSession добавляет идентификатор корзины в исходящие метаданные.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, sessionHeader, sessionID)
}

// WithToken добавляет bearer-токен.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authorizationHeader, "Bearer "+token)
}

// WithIdempotencyKey добавляет ключ идемпотентности для Checkout.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, idempotencyKeyHeader, key)
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	return call[LoginResponse](ctx, c.conn, MethodLogin, &LoginRequest{Email: email, Password: password})
}

func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	return call[Cart](ctx, c.conn, MethodGetCart, &GetCartRequest{})
}

func (c *Client) AddItem(ctx context.Context, productID string, qty int) (*Cart, error) {
	return call[Cart](ctx, c.conn, MethodAddItem, &AddItemRequest{ProductID: productID, Quantity: qty})
}

func (c *Client) UpdateQuantity(ctx context.Context, productID string, qty int) (*Cart, error) {
	return call[Cart](ctx, c.conn, MethodUpdateQuantity, &UpdateQuantityRequest{ProductID: productID, Quantity: qty})
}

func (c *Client) RemoveItem(ctx context.Context, productID string) (*Cart, error) {
	return call[Cart](ctx, c.conn, MethodRemoveItem, &RemoveItemRequest{ProductID: productID})
}

func (c *Client) ClearCart(ctx context.Context) (*Cart, error) {
	return call[Cart](ctx, c.conn, MethodClearCart, &ClearCartRequest{})
}

// Checkout оформляет заказ; opts позволяют прочитать заголовки ответа (grpc.Header).
func (c *Client) Checkout(ctx context.Context, form checkout.Form, opts ...grpc.CallOption) (*CheckoutResponse, error) {
	return call[CheckoutResponse](ctx, c.conn, MethodCheckout, &CheckoutRequest{Form: form}, opts...)
}

func call[Resp any](ctx context.Context, conn grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
