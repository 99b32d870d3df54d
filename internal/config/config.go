// Package config provides configuration types, loading and validation for labnet.
//
// Configuration is read from a YAML or TOML file (chosen by extension) and
// normalized by Validate. Every field has a usable default so an empty file,
// or no file at all, yields a working single-host setup.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	// Paths
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = "data"
	}
	if cfg.Paths.WorkDir == "" {
		cfg.Paths.WorkDir = "work"
	}
	if cfg.Paths.SavesDir == "" {
		cfg.Paths.SavesDir = "saves"
	}

	// Database
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "", DriverSQLite:
		cfg.Database.Driver = DriverSQLite
		if cfg.Database.DSN == "" {
			cfg.Database.DSN = filepath.Join(cfg.Paths.DataDir, "labnet.db")
		}
	case DriverPostgres:
		if cfg.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 5051
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}
	if cfg.API.Users == nil {
		cfg.API.Users = map[string]string{}
	}

	if err := cfg.validateDNS(); err != nil {
		return err
	}
	if err := cfg.validateProviders(); err != nil {
		return err
	}

	for i := range cfg.Remotes {
		r := &cfg.Remotes[i]
		if r.URL == "" {
			return fmt.Errorf("remotes[%d].url is required", i)
		}
		r.URL = strings.TrimRight(r.URL, "/")
		r.Timeout = parseDuration(r.TimeoutRaw, 30*time.Second)
	}

	return nil
}

func (cfg *Config) validateDNS() error {
	d := &cfg.DNS
	if d.Control == "" {
		d.Control = NameserverRNDC
	}
	if d.Control != NameserverRNDC && d.Control != NameserverMemory {
		return fmt.Errorf("dns.control %q is not supported", d.Control)
	}
	if d.Image == "" {
		d.Image = "docker.io/internetsystemsconsortium/bind9:9.18"
	}
	if d.ReloadAttempts == 0 {
		d.ReloadAttempts = 20
	}
	if d.ReloadAttempts < 0 {
		return errors.New("dns.reload_attempts must be positive")
	}
	d.ReloadInterval = parseDuration(d.ReloadIntervalRaw, 250*time.Millisecond)
	if d.QueryPort == 0 {
		d.QueryPort = 53
	}
	if d.QueryPort < 0 || d.QueryPort > 65535 {
		return errors.New("dns.query_port must be 1..65535")
	}
	d.QueryTimeout = parseDuration(d.QueryTimeoutRaw, 2*time.Second)
	if d.RNDCPath == "" {
		d.RNDCPath = "rndc"
	}
	return nil
}

func (cfg *Config) validateProviders() error {
	s := &cfg.Switch
	if s.Provider == "" {
		s.Provider = SwitchProviderOVS
	}
	if s.Provider != SwitchProviderOVS && s.Provider != SwitchProviderMemory {
		return fmt.Errorf("switch.provider %q is not supported", s.Provider)
	}
	if s.OVSVsctl == "" {
		s.OVSVsctl = "ovs-vsctl"
	}
	if s.IPCmd == "" {
		s.IPCmd = "ip"
	}
	if s.Nsenter == "" {
		s.Nsenter = "nsenter"
	}

	r := &cfg.Runtime
	if r.Provider == "" {
		r.Provider = RuntimeContainerd
	}
	if r.Provider != RuntimeContainerd && r.Provider != RuntimeMemory {
		return fmt.Errorf("runtime.provider %q is not supported", r.Provider)
	}
	if r.Socket == "" {
		r.Socket = "/run/containerd/containerd.sock"
	}
	if r.Namespace == "" {
		r.Namespace = "labnet"
	}
	r.StopTimeout = parseDuration(r.StopTimeoutRaw, 10*time.Second)
	return nil
}

// parseDuration parses raw, falling back to def when empty or invalid.
func parseDuration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
