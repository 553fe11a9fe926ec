package main

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logSpanProcessor writes every finished span to the logger.
type logSpanProcessor struct {
	logger *slog.Logger
}

func (logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	p.logger.Info("span",
		"name", s.Name(),
		"trace_id", s.SpanContext().TraceID().String(),
		"status", s.Status().Code.String(),
		"duration", s.EndTime().Sub(s.StartTime()))
}

func (logSpanProcessor) Shutdown(context.Context) error   { return nil }
func (logSpanProcessor) ForceFlush(context.Context) error { return nil }
