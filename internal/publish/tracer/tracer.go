// Package tracer provides the span abstraction used by the publish pipeline.
//
// The pipeline opens one span per publish call and one child span per stage
// (session, mint, upload, poll, record). Implementations:
//   - NoopTracer: for tests and when tracing is disabled
//   - OTelTracer: OpenTelemetry adapter
package tracer

import "context"

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span; a non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Span names.
const (
	SpanPublish = "publish.run"
	SpanSession = "publish.session"
	SpanMint    = "publish.service_auth"
	SpanUpload  = "publish.upload"
	SpanPoll    = "publish.poll"
	SpanRecord  = "publish.record"
)

// Attribute keys.
const (
	AttrTaskID      = "publish.task_id"
	AttrKind        = "publish.kind"
	AttrDID         = "publish.did"
	AttrJobID       = "video.job_id"
	AttrBytes       = "video.bytes"
	AttrInlineBlob  = "video.inline_blob"
	AttrFailureKind = "publish.failure_kind"
	AttrRecordURI   = "publish.record_uri"
	AttrStage       = "progress.stage"
	AttrPercent     = "progress.percent"
)

// Event names.
const (
	EventProgress = "publish.progress"
)
