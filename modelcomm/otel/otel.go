// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package commotel provides OpenTelemetry instrumentation for modelcomm.
// It implements the [modelcomm.MessageHook] interface to add distributed
// tracing and metrics to message transfer and RPC calls. Trace context
// travels in the message header meta, so a span started by a sender is the
// parent of the span recorded by the receiver.
//
// Usage:
//
//	rpc, err := modelcomm.NewRPCClient("solver", "%d\n", "%g\n")
//	// ...
//	commotel.InstrumentRPC(rpc, commotel.DefaultConfig())
package commotel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "modelcomm"

// OtelConfig configures OpenTelemetry instrumentation for Comms and RPCs.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator injects trace context into outgoing header meta and
	// extracts it from incoming meta. Defaults to
	// otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span of failed transfers.
	// Default true.
	RecordExceptions bool
	// ServiceName is the service.name attribute value. Defaults to
	// "modelcomm".
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with tracing, metrics and exception
// recording enabled. Providers and the propagator are resolved from the
// global OTel SDK when the hook is built.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// NewHook builds a message hook from cfg.
func NewHook(cfg OtelConfig) modelcomm.MessageHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = instrumentationName
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.messageCounter, _ = meter.Int64Counter("modelcomm.messages",
			metric.WithUnit("{message}"),
			metric.WithDescription("Number of messages and calls"),
		)
		hook.byteCounter, _ = meter.Int64Counter("modelcomm.bytes",
			metric.WithUnit("By"),
			metric.WithDescription("Bytes moved through transports, headers included"),
		)
		hook.chunkCounter, _ = meter.Int64Counter("modelcomm.chunks",
			metric.WithUnit("{chunk}"),
			metric.WithDescription("Transport messages used to carry messages"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("modelcomm.message.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of sends, receives and calls"),
		)
	}
	return hook
}

// InstrumentComm installs a hook built from cfg on c.
func InstrumentComm(c *modelcomm.Comm, cfg OtelConfig) {
	c.SetHook(NewHook(cfg))
}

// InstrumentRPC installs one hook on r and on both of its Comms, so calls,
// served requests and the messages they consist of are all recorded.
func InstrumentRPC(r *modelcomm.RPC, cfg OtelConfig) {
	hook := NewHook(cfg)
	r.SetHook(hook)
	r.Input().SetHook(hook)
	r.Output().SetHook(hook)
}

// otelHook implements modelcomm.MessageHook with OpenTelemetry tracing and
// metrics.
type otelHook struct {
	cfg               OtelConfig
	tracer            trace.Tracer
	messageCounter    metric.Int64Counter
	byteCounter       metric.Int64Counter
	chunkCounter      metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnMessageStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

func spanKind(info modelcomm.MessageInfo) trace.SpanKind {
	switch {
	case info.Kind == modelcomm.KindCall:
		return trace.SpanKindClient
	case info.Kind == modelcomm.KindServe:
		return trace.SpanKindServer
	case info.Direction == modelcomm.DirSend:
		return trace.SpanKindProducer
	default:
		return trace.SpanKindConsumer
	}
}

func operation(info modelcomm.MessageInfo) string {
	switch info.Kind {
	case modelcomm.KindCall:
		return "call"
	case modelcomm.KindServe:
		return "serve"
	}
	if info.Direction == modelcomm.DirSend {
		return "send"
	}
	return "receive"
}

// OnMessageStart extracts the parent trace context of received messages,
// starts a span and injects its context into the meta of sent ones.
func (h *otelHook) OnMessageStart(ctx context.Context, info modelcomm.MessageInfo) (context.Context, modelcomm.HookToken) {
	kind := spanKind(info)
	incoming := kind == trace.SpanKindConsumer || kind == trace.SpanKindServer
	if incoming && h.cfg.Propagator != nil && info.Metadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.Metadata))
	}

	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", instrumentationName),
		attribute.String("messaging.destination.name", info.Comm),
		attribute.String("messaging.operation", operation(info)),
		attribute.String("modelcomm.kind", info.Kind),
		attribute.String("service.name", h.cfg.ServiceName),
	}
	if info.MessageID != "" {
		attrs = append(attrs, attribute.String("messaging.message.id", info.MessageID))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("%s %s", info.Comm, operation(info)),
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)

	if !incoming && h.cfg.Propagator != nil && info.Metadata != nil {
		h.cfg.Propagator.Inject(ctx, propagation.MapCarrier(info.Metadata))
	}
	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnMessageEnd records metrics and ends the span.
func (h *otelHook) OnMessageEnd(ctx context.Context, token modelcomm.HookToken, info modelcomm.MessageInfo, stats *modelcomm.MessageStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("messaging.destination.name", info.Comm),
			attribute.String("messaging.operation", operation(info)),
			attribute.String("modelcomm.kind", info.Kind),
			attribute.String("status", status),
		)
		if h.messageCounter != nil {
			h.messageCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
		if stats != nil {
			if h.byteCounter != nil {
				h.byteCounter.Add(ctx, stats.Bytes, metricAttrs)
			}
			if h.chunkCounter != nil {
				h.chunkCounter.Add(ctx, stats.Chunks, metricAttrs)
			}
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("modelcomm.chunks", stats.Chunks),
				attribute.Int64("modelcomm.bytes", stats.Bytes),
				attribute.Int64("messaging.message.body.size", stats.PayloadBytes),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			st.span.SetAttributes(attribute.String("modelcomm.error_type", errorType(err)))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}

func errorType(err error) string {
	var commErr *modelcomm.Error
	if errors.As(err, &commErr) {
		return commErr.Type
	}
	var dtErr *datatype.Error
	if errors.As(err, &dtErr) {
		return dtErr.Type
	}
	return fmt.Sprintf("%T", err)
}
