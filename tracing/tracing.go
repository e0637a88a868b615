// Package tracing wraps opentracing spans around the tree engine's
// commit and proof operations, in the start/finish pairing flow-go's
// BaseMetrics uses around block execution
// (module/metrics/execution.go: StartBlockReceivedToExecuted /
// FinishBlockReceivedToExecuted).
package tracing

import (
	"github.com/opentracing/opentracing-go"
)

// Tracer issues spans for the named tree operations. A nil Tracer is
// valid and traces nothing, so callers need not special-case tests that
// don't configure one.
type Tracer struct {
	tracer opentracing.Tracer
}

// New wraps t. Pass opentracing.GlobalTracer() for a process-wide
// jaeger-backed tracer, or nil to disable tracing entirely.
func New(t opentracing.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// Span is an in-flight span; call Finish when the operation completes.
type Span struct {
	span opentracing.Span
}

// StartCommit begins a span around one Tree.Commit call.
func (t *Tracer) StartCommit(rootHex string) Span {
	return t.start("merklix.commit", "root", rootHex)
}

// StartProve begins a span around one Tree.Prove call.
func (t *Tracer) StartProve(keyHex string) Span {
	return t.start("merklix.prove", "key", keyHex)
}

// StartRecovery begins a span around the store's recovery scan.
func (t *Tracer) StartRecovery(prefix string) Span {
	return t.start("merklix.recover", "prefix", prefix)
}

func (t *Tracer) start(operation, tagKey, tagValue string) Span {
	if t == nil || t.tracer == nil {
		return Span{}
	}
	span := t.tracer.StartSpan(operation)
	span.SetTag(tagKey, tagValue)
	return Span{span: span}
}

// Finish ends the span, if one is in flight.
func (s Span) Finish() {
	if s.span != nil {
		s.span.Finish()
	}
}

// SetError marks the span as failed, annotating err.
func (s Span) SetError(err error) {
	if s.span == nil || err == nil {
		return
	}
	s.span.SetTag("error", true)
	s.span.LogKV("error.message", err.Error())
}
