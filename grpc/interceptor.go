package grpc

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor attaches the current bearer token from src to every
// unary call. While src has no token the call goes out unauthenticated.
func UnaryClientInterceptor(src oauth2.TokenSource, config *Config) grpc.UnaryClientInterceptor {
	config = orDefault(config)
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(withBearer(ctx, src, config, method), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming counterpart of UnaryClientInterceptor.
func StreamClientInterceptor(src oauth2.TokenSource, config *Config) grpc.StreamClientInterceptor {
	config = orDefault(config)
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(withBearer(ctx, src, config, method), desc, cc, method, opts...)
	}
}

func withBearer(ctx context.Context, src oauth2.TokenSource, config *Config, method string) context.Context {
	if src == nil {
		return ctx
	}
	tok, err := src.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		log.Debug().Str("method", method).Msg("no session, calling unauthenticated")
		return ctx
	}
	return BearerToOutgoingContext(ctx, tok.AccessToken, config)
}

// VerifyFunc resolves a bearer token to the email it was issued for.
type VerifyFunc func(token string) (email string, err error)

// InterceptorConfig configures the server interceptors.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Verify checks the bearer token. Required.
	Verify VerifyFunc

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but EmailFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods
// except publicMethods.
func NewInterceptorConfig(verify VerifyFunc, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Verify:        verify,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	email := ""
	if token := BearerFromIncomingContext(ctx, c.Config); token != "" && c.Verify != nil {
		verified, err := c.Verify(token)
		if err != nil {
			log.Debug().Err(err).Str("method", method).Msg("rejecting bearer token")
		} else {
			email = verified
		}
	}

	if email == "" {
		if c.RequireAuth && !c.PublicMethods[method] {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	return withEmail(ctx, email), nil
}

// ensureInterceptorDefaults treats a nil config as "require auth, verify nothing"
func ensureInterceptorDefaults(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = &InterceptorConfig{RequireAuth: true}
	}
	config.Config = orDefault(config.Config)
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
	return config
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies bearer metadata.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = ensureInterceptorDefaults(config)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authedStream overrides Context so handlers see the verified email
type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context {
	return s.ctx
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies bearer metadata.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = ensureInterceptorDefaults(config)

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}
