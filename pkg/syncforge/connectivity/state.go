// Package connectivity probes network reachability on a fixed cadence and
// notifies subscribers of online/offline transitions.
package connectivity

import "time"

// Quality is a coarse bucketing of perceived network latency.
type Quality string

// Quality levels, from a single timed request:
// under 100ms is excellent, under 300ms is good, anything slower is poor.
// Offline is reserved for failed reachability checks.
const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityOffline   Quality = "offline"
)

// State is a snapshot of the most recent probe outcome.
// It is owned by the Monitor; other components only read copies.
type State struct {
	Online        bool
	Quality       Quality
	LastCheckedAt time.Time
}

// Unknown reports whether any probe has completed yet.
func (s State) Unknown() bool {
	return s.LastCheckedAt.IsZero()
}

// Status describes the monitor for diagnostic surfaces.
type Status struct {
	Online           bool      `json:"is_online"`
	Quality          Quality   `json:"connection_quality"`
	LastCheckedAt    time.Time `json:"last_check"`
	MonitoringActive bool      `json:"monitoring_active"`
}
