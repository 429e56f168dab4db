package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID    contextKey = "request_id"
	ContextKeyOwnerID      contextKey = "owner_id"
	ContextKeyTemplateName contextKey = "template_name"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithOwnerID adds the opaque id of the record owner to the context
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerID, ownerID)
}

// OwnerIDFromContext extracts the owner ID from context
func OwnerIDFromContext(ctx context.Context) string {
	if ownerID, ok := ctx.Value(ContextKeyOwnerID).(string); ok {
		return ownerID
	}
	return ""
}

// WithTemplateName records which template an extraction is running for.
// Providers that answer per template (the offline provider) read it back.
func WithTemplateName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeyTemplateName, name)
}

// TemplateNameFromContext extracts the template name from context
func TemplateNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeyTemplateName).(string); ok {
		return name
	}
	return ""
}
