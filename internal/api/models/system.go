package models

import "time"

// VersionResponse describes the running build.
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

// MemoryData is host memory usage in bytes.
type MemoryData struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// CPUData is host CPU usage.
type CPUData struct {
	Count       int       `json:"count"`
	UsedPercent float64   `json:"used_percent"`
	Load        []float64 `json:"load,omitempty"`
}

// DiskData is usage of the filesystem holding the data directory.
type DiskData struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// SystemDataResponse is the output of /_system_data.
type SystemDataResponse struct {
	Hostname      string     `json:"hostname,omitempty"`
	Uptime        string     `json:"uptime"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     time.Time  `json:"start_time"`
	GoRoutines    int        `json:"goroutines"`
	Memory        MemoryData `json:"memory"`
	CPU           CPUData    `json:"cpu"`
	Disk          DiskData   `json:"disk"`
}
