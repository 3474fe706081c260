package supervisor

import "time"

// Metrics receives heartbeat outcomes from the supervisor loop. A nil
// Metrics disables collection entirely.
type Metrics interface {
	// ObserveHeartbeat records one heartbeat: whether the probe found
	// the mount alive, and how long the probe took.
	ObserveHeartbeat(alive bool, duration time.Duration)

	// RecordMissed records the current consecutive-miss count.
	RecordMissed(count int)

	// RecordRestart counts one engine restart.
	RecordRestart()

	// RecordMountState records whether the mount is currently
	// believed up.
	RecordMountState(up bool)
}
