package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	mountKey     contextKey = "mount"
	requestIDKey contextKey = "request_id"
)

// WithSessionID annotates context with the rendering session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithMount annotates context with the mount point a render targets.
func WithMount(ctx context.Context, mount string) context.Context {
	if mount == "" {
		return ctx
	}
	return context.WithValue(ctx, mountKey, mount)
}

// MountFromContext returns the mount point if present.
func MountFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(mountKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
