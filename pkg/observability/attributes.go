package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans and metrics.
var (
	AttrRPCMethod     = attribute.Key("cc.rpc.method")
	AttrConditionType = attribute.Key("cc.condition.type")
	AttrConditionCost = attribute.Key("cc.condition.cost")
	AttrVerifyValid   = attribute.Key("cc.verify.valid")
	AttrNumSigned     = attribute.Key("cc.sign.num_signed")
)

// RPCOperation creates attributes for one RPC call.
func RPCOperation(method string) []attribute.KeyValue {
	return []attribute.KeyValue{AttrRPCMethod.String(method)}
}

// ConditionAttributes describes the root of a condition tree.
func ConditionAttributes(typeName string, cost uint64) []attribute.KeyValue {
	if cost > 1<<63-1 {
		cost = 1<<63 - 1
	}
	return []attribute.KeyValue{
		AttrConditionType.String(typeName),
		AttrConditionCost.Int64(int64(cost)),
	}
}

// SetSpanAttributes annotates the span in ctx.
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// SetSpanStatus marks the span in ctx failed when err is non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
