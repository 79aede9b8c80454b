package utils

import "context"

type requestMetaKey struct{}

// RequestMeta is the caller information copied onto audit entries.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
	// ActorType is the verified token's user type, empty for anonymous requests.
	ActorType string
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
