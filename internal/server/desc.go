package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified grpc service name. Messages are
// google.protobuf.Struct documents carrying the JSON shapes of convert.Result
// and the request fields listed on each handler.
const ServiceName = "mediaconverter.v1.ConversionService"

const (
	MethodConvert         = "/" + ServiceName + "/Convert"
	MethodConvertDocument = "/" + ServiceName + "/ConvertDocument"
	MethodSubmit          = "/" + ServiceName + "/Submit"
	MethodGetJob          = "/" + ServiceName + "/GetJob"
)

// ConversionServiceServer is implemented by ConversionServer.
type ConversionServiceServer interface {
	Convert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConvertDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ConversionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ConversionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ConversionServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConversionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Convert", Handler: handler(MethodConvert, ConversionServiceServer.Convert)},
		{MethodName: "ConvertDocument", Handler: handler(MethodConvertDocument, ConversionServiceServer.ConvertDocument)},
		{MethodName: "Submit", Handler: handler(MethodSubmit, ConversionServiceServer.Submit)},
		{MethodName: "GetJob", Handler: handler(MethodGetJob, ConversionServiceServer.GetJob)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mediaconverter/v1/conversion.proto",
}

func RegisterConversionServiceServer(s grpc.ServiceRegistrar, srv ConversionServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ConversionServiceClient calls a ConversionService over conn.
type ConversionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewConversionServiceClient(cc grpc.ClientConnInterface) *ConversionServiceClient {
	return &ConversionServiceClient{cc: cc}
}

func (c *ConversionServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ConversionServiceClient) Convert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodConvert, in, opts...)
}

func (c *ConversionServiceClient) ConvertDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodConvertDocument, in, opts...)
}

func (c *ConversionServiceClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSubmit, in, opts...)
}

func (c *ConversionServiceClient) GetJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetJob, in, opts...)
}
