package logging

import (
	"context"

	"go.uber.org/zap"
)

type requestCtxKey struct{}
type channelCtxKey struct{}

// WithRequestID attaches a request ID to the context for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithChannelID attaches the originating chat channel ID to the context.
func WithChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, channelCtxKey{}, channelID)
}

// ChannelIDFromContext returns the channel ID, or "" when absent.
func ChannelIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(channelCtxKey{}).(string)
	return id
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if channelID := ChannelIDFromContext(ctx); channelID != "" {
		fields = append(fields, zap.String("channel.id", channelID))
	}
	return fields
}
