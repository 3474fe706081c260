package logger

// Standard field keys for structured logging. Use these consistently so
// session, engine and supervisor lines can be correlated and queried.
const (
	KeySession    = "session_id"  // Session identifier (uuid)
	KeyLocal      = "local"       // Local mount path
	KeyRemote     = "remote"      // Remote identifier (redacted form)
	KeyPath       = "path"        // File or directory path
	KeyPID        = "pid"         // Process ID (engine, supervisor)
	KeyComponent  = "component"   // engine, supervisor, probe, session, ctl
	KeyError      = "error"       // Error message
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMissed     = "missed"      // Consecutive missed heartbeats
	KeyRestarts   = "restarts"    // Consecutive engine restarts
	KeyAlive      = "alive"       // Probe outcome
	KeyTimeout    = "timeout"     // Operation timeout
	KeyInterval   = "interval"    // Refresh interval
	KeyAddr       = "addr"        // Network address (rc, control server)
	KeyState      = "state"       // Lifecycle state (mounted, unmounted, ...)
	KeySignal     = "signal"      // Signal name
	KeyOutput     = "output"      // Captured command output
)
