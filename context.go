package adminAuth

import (
	"context"

	"github.com/MrEthical07/adminAuth/clientstore"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type clientStorageContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is recorded on
// sessions created under ctx and in audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the caller's User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithClientStorage overrides the engine's persisted client storage for
// calls made under ctx. Hosts serving several clients from one engine use
// it to give each client its own token slot.
func WithClientStorage(ctx context.Context, s clientstore.Storage) context.Context {
	return context.WithValue(ctx, clientStorageContextKey{}, s)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func clientStorageFromContext(ctx context.Context) (clientstore.Storage, bool) {
	if ctx == nil {
		return nil, false
	}

	s, ok := ctx.Value(clientStorageContextKey{}).(clientstore.Storage)
	return s, ok && s != nil
}
