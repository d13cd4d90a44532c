package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "relay"

// StartMessageSpan starts a span for a message operation.
func StartMessageSpan(ctx context.Context, op, from, to string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, op,
		trace.WithAttributes(
			attribute.String("message.from", from),
			attribute.String("message.to", to),
		),
	)
}

// StartRouteSpan starts a span for capability routing.
func StartRouteSpan(ctx context.Context, capability, from string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route",
		trace.WithAttributes(
			attribute.String("route.capability", capability),
			attribute.String("message.from", from),
		),
	)
}

// StartCardSpan starts a span for an agent card registration.
func StartCardSpan(ctx context.Context, agentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "card.upsert",
		trace.WithAttributes(
			attribute.String("card.agent_id", agentID),
		),
	)
}
