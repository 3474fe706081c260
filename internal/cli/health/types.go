// Package health provides shared types for the daemon control API, used by
// both the control server and the CLI commands that query it.
package health

// Response represents the /healthz response structure.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		Service   string `json:"service"`
		Version   string `json:"version"`
		StartedAt string `json:"started_at"`
		Uptime    string `json:"uptime"`
		UptimeSec int64  `json:"uptime_sec"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// MountStatus represents the /api/v1/status response structure.
type MountStatus struct {
	State         string `json:"state"` // active, degraded, stopped, failed
	Local         string `json:"local"`
	Remote        string `json:"remote"`
	Alive         bool   `json:"alive"`
	EnginePID     int    `json:"engine_pid,omitempty"`
	SupervisorPID int    `json:"supervisor_pid,omitempty"`
	Restarts      int    `json:"restarts"`
	MountedAt     string `json:"mounted_at,omitempty"`
	Uptime        string `json:"uptime,omitempty"`
	UptimeSec     int64  `json:"uptime_sec,omitempty"`
}
