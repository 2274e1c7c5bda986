// Package capability answers "what can the feature layer safely offer
// right now?" as a pure function of connectivity state plus a manual
// override.
package capability

import (
	"log/slog"
	"sync/atomic"

	"github.com/mticknor/syncforge/pkg/syncforge/connectivity"
)

// Mode is the two-valued capability mode.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Feature names the fixed, known feature set.
type Feature string

const (
	FeatureAskQuestions      Feature = "ask_questions"
	FeaturePracticeQuestions Feature = "practice_questions"
	FeatureLearningPlans     Feature = "learning_plans"
	FeatureProgressTracking  Feature = "progress_tracking"
	FeatureTeacherFeatures   Feature = "teacher_features"
	FeatureLiveLeaderboard   Feature = "live_leaderboard"
	FeatureContentUpdates    Feature = "content_updates"
)

// Manifest is a snapshot of which features are safe to expose.
// It is recomputed on demand, never persisted.
type Manifest struct {
	Mode              Mode             `json:"mode"`
	AvailableFeatures map[Feature]bool `json:"available_features"`
	Limitations       []string         `json:"limitations"`
}

// Static per-mode feature tables. The offline table keeps everything local
// working and disables features that require the server.
var onlineFeatures = map[Feature]bool{
	FeatureAskQuestions:      true,
	FeaturePracticeQuestions: true,
	FeatureLearningPlans:     true,
	FeatureProgressTracking:  true,
	FeatureTeacherFeatures:   true,
	FeatureLiveLeaderboard:   true,
	FeatureContentUpdates:    true,
}

var offlineFeatures = map[Feature]bool{
	FeatureAskQuestions:      true, // local retrieval
	FeaturePracticeQuestions: true, // local question bank
	FeatureLearningPlans:     true, // local data
	FeatureProgressTracking:  true, // queued in the outbox
	FeatureTeacherFeatures:   false,
	FeatureLiveLeaderboard:   false,
	FeatureContentUpdates:    false,
}

var offlineLimitations = []string{
	"Cannot access latest content updates",
	"Progress will sync when connection restored",
	"Teacher features unavailable",
}

// Negotiator derives the capability manifest from the connectivity
// monitor's state plus a manual offline-mode flag.
//
// The flag flips on monitor transitions but triggers no other side
// effects; kicking off a sync pass on reconnection belongs to the
// orchestrator.
type Negotiator struct {
	monitor *connectivity.Monitor
	logger  *slog.Logger

	offlineActive atomic.Bool
}

// NewNegotiator creates a Negotiator subscribed to the monitor's
// transitions.
func NewNegotiator(monitor *connectivity.Monitor, logger *slog.Logger) *Negotiator {
	n := &Negotiator{monitor: monitor, logger: logger}

	monitor.SubscribeOnline(func(connectivity.State) error {
		n.offlineActive.Store(false)
		if n.logger != nil {
			n.logger.Info("connection restored, offline mode deactivated")
		}
		return nil
	})
	monitor.SubscribeOffline(func(connectivity.State) error {
		n.offlineActive.Store(true)
		if n.logger != nil {
			n.logger.Warn("connection lost, offline mode activated")
		}
		return nil
	})

	return n
}

// SetOfflineMode sets the manual override flag directly.
func (n *Negotiator) SetOfflineMode(active bool) {
	n.offlineActive.Store(active)
}

// IsOfflineMode reports whether the manifest would currently be offline.
func (n *Negotiator) IsOfflineMode() bool {
	return n.offlineActive.Load() || !n.monitor.IsOnline()
}

// Capabilities computes the manifest for the current state. Every call
// reflects current truth; there is no transition to miss.
func (n *Negotiator) Capabilities() Manifest {
	if n.IsOfflineMode() {
		return Manifest{
			Mode:              ModeOffline,
			AvailableFeatures: copyFeatures(offlineFeatures),
			Limitations:       append([]string(nil), offlineLimitations...),
		}
	}
	return Manifest{
		Mode:              ModeOnline,
		AvailableFeatures: copyFeatures(onlineFeatures),
		Limitations:       []string{},
	}
}

func copyFeatures(src map[Feature]bool) map[Feature]bool {
	out := make(map[Feature]bool, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
