package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Tributary-ai-services/sitengine/pkg/pipeline"
)

// ClassifierServiceName is the fully qualified gRPC service name
const ClassifierServiceName = "sitengine.v1.Classifier"

// JSONCodecName is the content subtype clients select with
// grpc.CallContentSubtype to talk to the classifier.
const JSONCodecName = "json"

// jsonCodec carries classifier messages as JSON. The message types are plain
// Go structs shared with the HTTP API.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GRPCConfig configures the gRPC service
type GRPCConfig struct {
	// Metadata extraction
	TenantIDMetadata  string `json:"tenant_id_metadata"`
	RequestIDMetadata string `json:"request_id_metadata"`

	// Message limits in bytes. 0 keeps the gRPC defaults.
	MaxRecvMsgSize int `json:"max_recv_msg_size"`
	MaxSendMsgSize int `json:"max_send_msg_size"`
}

// DefaultGRPCConfig returns default gRPC service configuration
func DefaultGRPCConfig() *GRPCConfig {
	return &GRPCConfig{
		TenantIDMetadata:  "x-tenant-id",
		RequestIDMetadata: "x-request-id",
	}
}

// ClassifierServer is the server API for the sitengine.v1.Classifier service
type ClassifierServer interface {
	Classify(ctx context.Context, req *ClassifyRequest) (*pipeline.ProcessResult, error)
	Validate(ctx context.Context, req *ValidateRequest) (*ValidateResponse, error)
}

// ClassifierServiceDesc describes the classifier service for grpc.Server.RegisterService
var ClassifierServiceDesc = grpc.ServiceDesc{
	ServiceName: ClassifierServiceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: classifyHandler},
		{MethodName: "Validate", Handler: validateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sitengine/v1/classifier",
}

func classifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClassifyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ClassifierServiceName + "/Classify"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClassifierServer).Classify(ctx, req.(*ClassifyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func validateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ValidateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ClassifierServiceName + "/Validate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClassifierServer).Validate(ctx, req.(*ValidateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCService implements ClassifierServer over a pipeline.Processor
type GRPCService struct {
	processor pipeline.Processor
	config    *GRPCConfig
}

// Ensure GRPCService implements the ClassifierServer interface.
var _ ClassifierServer = (*GRPCService)(nil)

// NewGRPCService wraps processor. A nil config uses DefaultGRPCConfig().
func NewGRPCService(processor pipeline.Processor, config *GRPCConfig) *GRPCService {
	if config == nil {
		config = DefaultGRPCConfig()
	}
	return &GRPCService{processor: processor, config: config}
}

// Classify runs the pipeline. The tenant falls back to request metadata.
func (s *GRPCService) Classify(ctx context.Context, req *ClassifyRequest) (*pipeline.ProcessResult, error) {
	if req.TenantID == "" {
		req.TenantID = firstMetadata(ctx, s.config.TenantIDMetadata)
	}

	result, err := s.processor.Process(ctx, req.processRequest())
	if err != nil {
		return nil, toStatus(err)
	}
	return result, nil
}

// Validate runs the validity scan
func (s *GRPCService) Validate(_ context.Context, req *ValidateRequest) (*ValidateResponse, error) {
	return validate(s.processor, req), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrTextTooLarge):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// NewGRPCServer builds a server with the classifier and the standard health
// service registered. The health status of the classifier starts SERVING.
func NewGRPCServer(processor pipeline.Processor, config *GRPCConfig, logger *zap.Logger, recorder RequestRecorder, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if config == nil {
		config = DefaultGRPCConfig()
	}
	if config.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(config.MaxRecvMsgSize))
	}
	if config.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(config.MaxSendMsgSize))
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryServerInterceptor(logger, recorder, config)))

	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ClassifierServiceDesc, NewGRPCService(processor, config))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ClassifierServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}

// UnaryServerInterceptor logs and counts unary calls
func UnaryServerInterceptor(logger *zap.Logger, recorder RequestRecorder, config *GRPCConfig) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config == nil {
		config = DefaultGRPCConfig()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", firstMetadata(ctx, config.RequestIDMetadata)),
		)
		if recorder != nil {
			recorder.Request("grpc", code.String())
		}
		return resp, err
	}
}

// ClassifierClient calls the classifier service over a connection
type ClassifierClient struct {
	cc grpc.ClientConnInterface
}

// NewClassifierClient creates a client on cc
func NewClassifierClient(cc grpc.ClientConnInterface) *ClassifierClient {
	return &ClassifierClient{cc: cc}
}

// Classify calls sitengine.v1.Classifier/Classify
func (c *ClassifierClient) Classify(ctx context.Context, in *ClassifyRequest, opts ...grpc.CallOption) (*pipeline.ProcessResult, error) {
	out := new(pipeline.ProcessResult)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ClassifierServiceName+"/Classify", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate calls sitengine.v1.Classifier/Validate
func (c *ClassifierClient) Validate(ctx context.Context, in *ValidateRequest, opts ...grpc.CallOption) (*ValidateResponse, error) {
	out := new(ValidateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ClassifierServiceName+"/Validate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
