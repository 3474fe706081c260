package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for mount supervision spans. Generic keys follow
// OpenTelemetry semantic conventions where one applies; mount-specific
// keys use the "mount." prefix.
const (
	AttrSessionID  = "mount.session_id"
	AttrLocal      = "mount.local"
	AttrRemote     = "mount.remote"      // redacted remote identifier
	AttrRemoteType = "mount.remote_type" // sftp, s3
	AttrEnginePID  = "mount.engine_pid"
	AttrAttempt    = "mount.attempt" // restart / retry attempt number
	AttrAlive      = "mount.alive"   // probe outcome
	AttrMissed     = "mount.missed"  // consecutive missed heartbeats
	AttrGraceful   = "mount.graceful"
	AttrTimeout    = "mount.timeout_s"
	AttrInterval   = "mount.interval_s"
)

// Span names for the mount lifecycle.
const (
	SpanMount     = "mount.mount"
	SpanUnmount   = "mount.unmount"
	SpanRefresh   = "mount.refresh"
	SpanIsAlive   = "mount.is_alive"
	SpanHeartbeat = "supervisor.heartbeat"
	SpanRecover   = "supervisor.recover"
	SpanProbe     = "probe.check"
)

// Attribute constructors.

func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

func Local(path string) attribute.KeyValue {
	return attribute.String(AttrLocal, path)
}

func Remote(redacted string) attribute.KeyValue {
	return attribute.String(AttrRemote, redacted)
}

func RemoteType(t string) attribute.KeyValue {
	return attribute.String(AttrRemoteType, t)
}

func EnginePID(pid int) attribute.KeyValue {
	return attribute.Int(AttrEnginePID, pid)
}

func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

func Alive(alive bool) attribute.KeyValue {
	return attribute.Bool(AttrAlive, alive)
}

func Missed(n int) attribute.KeyValue {
	return attribute.Int(AttrMissed, n)
}

func Graceful(graceful bool) attribute.KeyValue {
	return attribute.Bool(AttrGraceful, graceful)
}

// StartMountSpan starts a span for a session lifecycle operation with the
// session identity attached.
func StartMountSpan(ctx context.Context, name, sessionID, local string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, SessionID(sessionID), Local(local))
	all = append(all, attrs...)
	return Tracer().Start(ctx, name, trace.WithAttributes(all...))
}
