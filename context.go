package authkit

import "context"

type ctxKey int

const (
	ctxKeyClientIP ctxKey = iota
	ctxKeyUserAgent
)

// WithClientIP attaches the caller's IP address to the context. Login,
// refresh and the other audited operations read it for session records and
// audit events; an absent value is recorded as empty.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// WithUserAgent attaches the caller's User-Agent string to the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyClientIP).(string)
	return ip
}

func userAgent(ctx context.Context) string {
	ua, _ := ctx.Value(ctxKeyUserAgent).(string)
	return ua
}
