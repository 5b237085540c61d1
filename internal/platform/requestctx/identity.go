// Package requestctx carries authenticated request identity through context.
package requestctx

import "context"

type identityIDContextKey struct{}
type tenantIDContextKey struct{}
type deviceSessionIDContextKey struct{}

// WithIdentityID stores an identity identifier in context.
func WithIdentityID(ctx context.Context, identityID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityIDContextKey{}, identityID)
}

// IdentityIDFromContext returns the identity identifier stored in context.
func IdentityIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(identityIDContextKey{}).(string)
	return value
}

// WithTenantID stores a tenant identifier in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantIDContextKey{}, tenantID)
}

// TenantIDFromContext returns the tenant identifier stored in context.
func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(tenantIDContextKey{}).(string)
	return value
}

// WithDeviceSessionID stores the caller's device session identifier in context.
func WithDeviceSessionID(ctx context.Context, deviceSessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, deviceSessionIDContextKey{}, deviceSessionID)
}

// DeviceSessionIDFromContext returns the device session identifier stored in context.
func DeviceSessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(deviceSessionIDContextKey{}).(string)
	return value
}
