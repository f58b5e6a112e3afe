package runtime

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"goa.design/goa-ai/runtime/mcp"
)

// Caller, CallRequest, CallResponse, and Error are re-exported from
// goa.design/goa-ai/runtime/mcp so that the stdio and HTTP callers in this
// package implement the same Caller contract the generated tool adapters
// consume, without duplicating the type definitions.
type (
	Caller      = mcp.Caller
	CallRequest = mcp.CallRequest
	CallResponse = mcp.CallResponse
	Error       = mcp.Error
)

func addTraceMeta(ctx context.Context, params map[string]any) {
	if ctx == nil || params == nil {
		return
	}
	mcp.AddTraceMeta(ctx, params)
}

func injectTraceHeaders(ctx context.Context, header http.Header) {
	if ctx == nil || header == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
