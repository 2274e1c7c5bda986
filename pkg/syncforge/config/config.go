// Package config loads and validates syncforge settings.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends supported for the persisted queue.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Duration is a time.Duration that unmarshals from either a duration
// string ("30s", "5m") or a bare number of seconds.
//
// Accepting numbers-as-seconds keeps config files written for the source
// system's seconds-based surface working unchanged.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the standard duration formatting.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.coerce(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.coerce(raw)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) coerce(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case int64:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return fmt.Errorf("cannot parse %T as duration", raw)
	}
}

// Settings holds every externally-supplied knob for the sync core.
// Zero values are replaced with documented defaults by ApplyDefaults.
type Settings struct {
	// Connectivity monitor
	CheckInterval Duration `yaml:"check_interval" json:"check_interval"`
	ProbeTimeout  Duration `yaml:"probe_timeout" json:"probe_timeout"`
	DialAddress   string   `yaml:"dial_address" json:"dial_address"`
	ProbeURLs     []string `yaml:"probe_urls" json:"probe_urls"`

	// Outbox
	FlushInterval Duration `yaml:"flush_interval" json:"flush_interval"`
	BatchSize     int      `yaml:"batch_size" json:"batch_size"`
	MaxRetries    int      `yaml:"max_retries" json:"max_retries"`

	// Persisted queue store
	QueuePath    string `yaml:"queue_path" json:"queue_path"`
	QueueBackend string `yaml:"queue_backend" json:"queue_backend"`

	// Remote sync endpoint
	SyncURL         string   `yaml:"sync_url" json:"sync_url"`
	DeliveryTimeout Duration `yaml:"delivery_timeout" json:"delivery_timeout"`
}

// Default values. Intervals match the source system's behavior; the check
// interval is additionally clamped to the documented 5-300s range.
const (
	DefaultCheckInterval   = Duration(30 * time.Second)
	DefaultProbeTimeout    = Duration(5 * time.Second)
	DefaultDialAddress     = "1.1.1.1:53"
	DefaultFlushInterval   = Duration(300 * time.Second)
	DefaultBatchSize       = 100
	DefaultMaxRetries      = 3
	DefaultQueuePath       = "./data/sync_queue.json"
	DefaultDeliveryTimeout = Duration(5 * time.Second)

	minCheckInterval = Duration(5 * time.Second)
	maxCheckInterval = Duration(300 * time.Second)
	maxProbeTimeout  = Duration(10 * time.Second)
)

// DefaultProbeURLs are tried in order; the first 2xx wins.
func DefaultProbeURLs() []string {
	return []string{
		"https://www.google.com",
		"https://www.cloudflare.com",
		"https://1.1.1.1",
	}
}

// Default returns settings with every field at its default.
func Default() Settings {
	s := Settings{}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills unset fields and clamps the check interval.
func (s *Settings) ApplyDefaults() {
	if s.CheckInterval <= 0 {
		s.CheckInterval = DefaultCheckInterval
	}
	if s.CheckInterval < minCheckInterval {
		s.CheckInterval = minCheckInterval
	}
	if s.CheckInterval > maxCheckInterval {
		s.CheckInterval = maxCheckInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = DefaultProbeTimeout
	}
	if s.DialAddress == "" {
		s.DialAddress = DefaultDialAddress
	}
	if len(s.ProbeURLs) == 0 {
		s.ProbeURLs = DefaultProbeURLs()
	}
	if s.FlushInterval <= 0 {
		s.FlushInterval = DefaultFlushInterval
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.QueuePath == "" {
		s.QueuePath = DefaultQueuePath
	}
	if s.QueueBackend == "" {
		s.QueueBackend = BackendFile
	}
	if s.DeliveryTimeout <= 0 {
		s.DeliveryTimeout = DefaultDeliveryTimeout
	}
}

// Validate reports the first invalid field, if any.
// Call after ApplyDefaults.
func (s *Settings) Validate() error {
	if s.QueueBackend != BackendFile && s.QueueBackend != BackendSQLite {
		return fmt.Errorf("unknown queue backend %q (want %q or %q)",
			s.QueueBackend, BackendFile, BackendSQLite)
	}
	for _, u := range s.ProbeURLs {
		if u == "" {
			return fmt.Errorf("probe_urls contains an empty URL")
		}
	}
	if s.ProbeTimeout > maxProbeTimeout {
		return fmt.Errorf("probe_timeout %s too large (single-digit seconds expected)", s.ProbeTimeout)
	}
	if s.DeliveryTimeout > maxProbeTimeout {
		return fmt.Errorf("delivery_timeout %s too large (single-digit seconds expected)", s.DeliveryTimeout)
	}
	return nil
}
