package grpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// RegisterCartServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

// CartServiceDesc описывает сервис без сгенерированного кода: сообщения
// кодируются jsonCodec.
var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, CartServiceServer.Login)},
		{MethodName: "GetCart", Handler: unaryHandler(MethodGetCart, CartServiceServer.GetCart)},
		{MethodName: "AddItem", Handler: unaryHandler(MethodAddItem, CartServiceServer.AddItem)},
		{MethodName: "UpdateQuantity", Handler: unaryHandler(MethodUpdateQuantity, CartServiceServer.UpdateQuantity)},
		{MethodName: "RemoveItem", Handler: unaryHandler(MethodRemoveItem, CartServiceServer.RemoveItem)},
		{MethodName: "ClearCart", Handler: unaryHandler(MethodClearCart, CartServiceServer.ClearCart)},
		{MethodName: "Checkout", Handler: unaryHandler(MethodCheckout, CartServiceServer.Checkout)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/cart_service",
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(CartServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CartServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CartServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
