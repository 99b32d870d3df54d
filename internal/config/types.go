package config

import "time"

// Switch providers.
const (
	SwitchProviderOVS    = "ovs"
	SwitchProviderMemory = "memory"
)

// Compute-unit runtimes.
const (
	RuntimeContainerd = "containerd"
	RuntimeMemory     = "memory"
)

// Nameserver control backends.
const (
	NameserverRNDC   = "rndc"
	NameserverMemory = "memory"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// DataDir holds the database, history log and process lock.
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	// WorkDir holds generated per-service files (zone files, named.conf).
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
	// SavesDir holds save-state snapshots.
	SavesDir string `json:"saves_dir" yaml:"saves_dir" toml:"saves_dir"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver" toml:"driver"` // "sqlite" or "postgres"
	DSN    string `json:"dsn" yaml:"dsn" toml:"dsn"`          // file path for sqlite, URL for postgres
}

// APIConfig contains management API settings.
//
// Users maps usernames to plain passwords checked with HTTP Basic auth.
// They are never returned by API endpoints.
type APIConfig struct {
	Enabled          bool              `json:"enabled" yaml:"enabled" toml:"enabled"`
	Host             string            `json:"host" yaml:"host" toml:"host"`
	Port             int               `json:"port" yaml:"port" toml:"port"`
	Users            map[string]string `json:"-" yaml:"users" toml:"users"`
	AllowLocalBypass bool              `json:"allow_local_bypass" yaml:"allow_local_bypass" toml:"allow_local_bypass"`
	Static           bool              `json:"static" yaml:"static" toml:"static"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `json:"level" yaml:"level" toml:"level"`
	Structured       bool              `json:"structured" yaml:"structured" toml:"structured"`
	StructuredFormat string            `json:"structured_format" yaml:"structured_format" toml:"structured_format"`
	IncludePID       bool              `json:"include_pid" yaml:"include_pid" toml:"include_pid"`
	ExtraFields      map[string]string `json:"extra_fields,omitempty" yaml:"extra_fields" toml:"extra_fields"`
}

// DNSConfig controls the authority servers and the reload confirmation loop.
type DNSConfig struct {
	Control string `json:"control" yaml:"control" toml:"control"` // "rndc" or "memory"
	Image   string `json:"image" yaml:"image" toml:"image"`

	// ReloadAttempts bounds how many times the live serial is polled after a reload.
	ReloadAttempts int `json:"reload_attempts" yaml:"reload_attempts" toml:"reload_attempts"`
	// ReloadIntervalRaw is the pause between polls (e.g. "250ms").
	ReloadIntervalRaw string        `json:"reload_interval" yaml:"reload_interval" toml:"reload_interval"`
	ReloadInterval    time.Duration `json:"-" yaml:"-" toml:"-"`

	QueryPort       int           `json:"query_port" yaml:"query_port" toml:"query_port"`
	QueryTimeoutRaw string        `json:"query_timeout" yaml:"query_timeout" toml:"query_timeout"`
	QueryTimeout    time.Duration `json:"-" yaml:"-" toml:"-"`

	RNDCPath string `json:"rndc_path" yaml:"rndc_path" toml:"rndc_path"`
	RNDCKey  string `json:"rndc_key,omitempty" yaml:"rndc_key" toml:"rndc_key"`
}

// SwitchConfig selects and configures the virtual switch provider.
type SwitchConfig struct {
	Provider string `json:"provider" yaml:"provider" toml:"provider"`
	OVSVsctl string `json:"ovs_vsctl" yaml:"ovs_vsctl" toml:"ovs_vsctl"`
	IPCmd    string `json:"ip_cmd" yaml:"ip_cmd" toml:"ip_cmd"`
	Nsenter  string `json:"nsenter" yaml:"nsenter" toml:"nsenter"`
}

// RuntimeConfig selects and configures the compute-unit runtime.
type RuntimeConfig struct {
	Provider       string        `json:"provider" yaml:"provider" toml:"provider"`
	Socket         string        `json:"socket" yaml:"socket" toml:"socket"`
	Namespace      string        `json:"namespace" yaml:"namespace" toml:"namespace"`
	StopTimeoutRaw string        `json:"stop_timeout" yaml:"stop_timeout" toml:"stop_timeout"`
	StopTimeout    time.Duration `json:"-" yaml:"-" toml:"-"`
}

// RemoteConfig points at a peer labnet instance whose modules are proxied.
type RemoteConfig struct {
	Name       string        `json:"name" yaml:"name" toml:"name"`
	URL        string        `json:"url" yaml:"url" toml:"url"`
	User       string        `json:"user" yaml:"user" toml:"user"`
	Password   string        `json:"-" yaml:"password" toml:"password"`
	TimeoutRaw string        `json:"timeout" yaml:"timeout" toml:"timeout"`
	Timeout    time.Duration `json:"-" yaml:"-" toml:"-"`
}

// Config is the root configuration structure.
type Config struct {
	Paths    PathsConfig    `json:"paths" yaml:"paths" toml:"paths"`
	Database DatabaseConfig `json:"database" yaml:"database" toml:"database"`
	API      APIConfig      `json:"api" yaml:"api" toml:"api"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" toml:"logging"`
	DNS      DNSConfig      `json:"dns" yaml:"dns" toml:"dns"`
	Switch   SwitchConfig   `json:"switch" yaml:"switch" toml:"switch"`
	Runtime  RuntimeConfig  `json:"runtime" yaml:"runtime" toml:"runtime"`
	Remotes  []RemoteConfig `json:"remotes,omitempty" yaml:"remotes" toml:"remotes"`

	// RestoreOnStart names a save-state restored once all modules are loaded.
	RestoreOnStart string `json:"restore_on_start" yaml:"restore_on_start" toml:"restore_on_start"`
}
