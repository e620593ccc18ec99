package comabi

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/osmiumlabs/comabi/types"
)

const tracerName = "github.com/osmiumlabs/comabi"

// startCallSpan opens a span around one boundary crossing when call tracing
// is enabled. Crossings are synchronous and carry no context of their own,
// so spans are rooted in the background context. The returned func ends the
// span and records the crossing's outcome.
func startCallSpan(kind string, id types.InterfaceID, method string) func(error) {
	if !types.CurrentConfig().TraceCalls {
		return func(error) {}
	}
	_, span := otel.Tracer(tracerName).Start(context.Background(), "comabi."+kind,
		trace.WithAttributes(
			attribute.String("comabi.interface", id.String()),
			attribute.String("comabi.method", method),
		))
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
