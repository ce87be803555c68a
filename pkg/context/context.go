package context

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

type ContextKey string

var (
	TenantIDKey   = ContextKey("X-Tenant-Id")
	BatchIDKey    = ContextKey("X-Batch-Id")
	SourceSiteKey = ContextKey("X-Source-Site")
)

func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string {
	return getString(ctx, TenantIDKey)
}

func SetBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func GetBatchID(ctx context.Context) string {
	return getString(ctx, BatchIDKey)
}

func SetSourceSite(ctx context.Context, sourceSite string) context.Context {
	return context.WithValue(ctx, SourceSiteKey, sourceSite)
}

func GetSourceSite(ctx context.Context) string {
	return getString(ctx, SourceSiteKey)
}

// Fields returns the populated context values keyed for structured logging
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if v := GetTenantID(ctx); v != "" {
		fields["tenant_id"] = v
	}
	if v := GetBatchID(ctx); v != "" {
		fields["batch_id"] = v
	}
	if v := GetSourceSite(ctx); v != "" {
		fields["source_site"] = v
	}
	if v := tracing.GetTraceID(ctx); v != "" {
		fields["trace_id"] = v
	}
	return fields
}

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}
