package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const purchasesServiceName = "purchases.PurchasesService"

// PurchasesServiceServer exchanges google.protobuf.Struct messages whose
// fields mirror the JSON bodies of the HTTP API.
type PurchasesServiceServer interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPurchaseStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPurchasedCourses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(PurchasesServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var PurchasesServiceDesc = grpc.ServiceDesc{
	ServiceName: purchasesServiceName,
	HandlerType: (*PurchasesServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: unaryHandler("Health", PurchasesServiceServer.Health)},
		{MethodName: "GetPurchaseStatus", Handler: unaryHandler("GetPurchaseStatus", PurchasesServiceServer.GetPurchaseStatus)},
		{MethodName: "ListPurchasedCourses", Handler: unaryHandler("ListPurchasedCourses", PurchasesServiceServer.ListPurchasedCourses)},
		{MethodName: "ConfirmPayment", Handler: unaryHandler("ConfirmPayment", PurchasesServiceServer.ConfirmPayment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "purchases.proto",
}

func RegisterPurchasesServiceServer(s grpc.ServiceRegistrar, srv PurchasesServiceServer) {
	s.RegisterService(&PurchasesServiceDesc, srv)
}

func unaryHandler(method string, call unaryMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + purchasesServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PurchasesServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PurchasesServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type PurchasesServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPurchasesServiceClient(cc grpc.ClientConnInterface) *PurchasesServiceClient {
	return &PurchasesServiceClient{cc: cc}
}

func (c *PurchasesServiceClient) Health(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Health", in, opts...)
}

func (c *PurchasesServiceClient) GetPurchaseStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetPurchaseStatus", in, opts...)
}

func (c *PurchasesServiceClient) ListPurchasedCourses(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListPurchasedCourses", in, opts...)
}

func (c *PurchasesServiceClient) ConfirmPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ConfirmPayment", in, opts...)
}

func (c *PurchasesServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+purchasesServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
