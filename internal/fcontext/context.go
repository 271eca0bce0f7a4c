package fcontext

import (
	"context"
)

type requestID struct{}

// WithRequestID adds request id to ctx
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestID{}, rid)
}

// RequestID gets request id from context or generates a new one
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestID{}).(string)
	return rid
}

type deviceID struct{}

// WithDeviceID adds device id to ctx
func WithDeviceID(ctx context.Context, did string) context.Context {
	return context.WithValue(ctx, deviceID{}, did)
}

// DeviceID gets device id from context
func DeviceID(ctx context.Context) string {
	did, _ := ctx.Value(deviceID{}).(string)
	return did
}
