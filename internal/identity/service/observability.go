package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idvault/internal/audit"
)

const tracerName = "idvault/identity"

// span wraps an OTel span so call sites can defer span.End(err).
type span struct {
	otel trace.Span
}

func (sp span) End(err error) {
	if err != nil {
		sp.otel.RecordError(err)
		sp.otel.SetStatus(codes.Error, err.Error())
	}
	sp.otel.End()
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, span) {
	ctx, otelSpan := otel.Tracer(tracerName).Start(ctx, name)
	return ctx, span{otel: otelSpan}
}

// emitAudit publishes an audit event, stamping the time. Audit delivery
// failures are logged, never propagated to the caller.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logError(ctx, "could not publish audit event",
			"action", event.Action,
			"error", err.Error(),
		)
	}
}

func (s *Service) observeKDF(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveKeyDerivation(start)
	}
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, args...)
	}
}
