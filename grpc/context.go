// Package grpc carries a onesession bearer token across gRPC calls: client
// interceptors attach it to outgoing metadata and server helpers read it back.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization is the metadata key carrying "Bearer <token>".
// It can be customized via Config if needed.
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

func orDefault(config *Config) *Config {
	if config == nil {
		return DefaultConfig()
	}
	config.EnsureDefaults()
	return config
}

// BearerToOutgoingContext adds "Bearer <token>" to outgoing metadata.
func BearerToOutgoingContext(ctx context.Context, token string, config *Config) context.Context {
	config = orDefault(config)
	return metadata.AppendToOutgoingContext(ctx, config.MetadataKeyAuthorization, "Bearer "+token)
}

// BearerFromIncomingContext returns the bearer token of an incoming call, or
// "" when there is none.
func BearerFromIncomingContext(ctx context.Context, config *Config) string {
	config = orDefault(config)

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKeyAuthorization) {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	return ""
}

type emailKey struct{}

// EmailFromContext returns the email a server interceptor verified for this
// call. Returns empty string if the call is unauthenticated.
func EmailFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(emailKey{}).(string); ok {
		return v
	}
	return ""
}

// IsAuthenticated returns true if a server interceptor verified the caller.
func IsAuthenticated(ctx context.Context) bool {
	return EmailFromContext(ctx) != ""
}

func withEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey{}, email)
}
