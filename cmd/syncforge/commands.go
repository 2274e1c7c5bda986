package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mticknor/syncforge/pkg/syncforge"
	"github.com/mticknor/syncforge/pkg/syncforge/capability"
	"github.com/mticknor/syncforge/pkg/syncforge/config"
	"github.com/mticknor/syncforge/pkg/syncforge/connectivity"
	"github.com/mticknor/syncforge/pkg/syncforge/observability"
	"github.com/mticknor/syncforge/pkg/syncforge/outbox"
	"github.com/mticknor/syncforge/pkg/syncforge/remote"
)

func loadSettings() (config.Settings, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.FromFile(configPath)
}

func openStore(settings config.Settings) (outbox.Store, error) {
	switch settings.QueueBackend {
	case config.BackendSQLite:
		return outbox.NewSQLiteStore(settings.QueuePath)
	default:
		return outbox.NewFileStore(settings.QueuePath)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon until interrupted",
	Long: `Run the connectivity monitor and background sync loops.

Requires sync_url in the config so queued records have somewhere to go.

Example:
  syncforge --config ./syncforge.yaml run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		if settings.SyncURL == "" {
			return fmt.Errorf("sync_url is required to run the daemon")
		}

		token := os.Getenv("SYNCFORGE_TOKEN")
		endpoint := remote.NewHTTPEndpoint(settings.SyncURL, token, settings.DeliveryTimeout.Std())

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		orch, err := syncforge.New(settings, endpoint,
			syncforge.WithLogger(logger),
			syncforge.WithMetrics(observability.NewMetricsRecorder()),
			syncforge.WithSpanManager(observability.NewSpanManager()),
		)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch.Start(ctx)
		fmt.Fprintf(os.Stdout, "syncforge %s running (queue: %s)\n", version, settings.QueuePath)

		<-ctx.Done()
		fmt.Fprintln(os.Stdout, "shutting down")
		return orch.Stop()
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		store, err := openStore(settings)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, err := store.Load()
		if err != nil {
			return err
		}

		breakdown := map[outbox.Status]int{}
		for _, rec := range snap.Records {
			breakdown[rec.Status]++
		}
		return printJSON(map[string]any{
			"queue_path":       settings.QueuePath,
			"last_updated":     snap.LastUpdated,
			"total_records":    len(snap.Records),
			"status_breakdown": breakdown,
		})
	},
}

// --- enqueue ---

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Append a record to the sync queue",
	Long: `Append a record to the persisted sync queue without delivering it.

Examples:
  syncforge enqueue --type practice_answer --data '{"question_id":"math_001","answer":"x = 5"}'
  syncforge enqueue --type topic_progress --data '{"topic":"Algebra","progress_percent":75}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		recordType, _ := cmd.Flags().GetString("type")
		data, _ := cmd.Flags().GetString("data")

		if strings.TrimSpace(recordType) == "" {
			return fmt.Errorf("--type is required")
		}

		payload := map[string]any{}
		if data != "" {
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return fmt.Errorf("parsing --data: %w", err)
			}
		}

		settings, err := loadSettings()
		if err != nil {
			return err
		}

		store, err := openStore(settings)
		if err != nil {
			return err
		}
		defer store.Close()

		// Enqueue never touches the network, so no endpoint is needed.
		mgr, err := outbox.NewManager(outbox.Config{
			BatchSize:  settings.BatchSize,
			MaxRetries: settings.MaxRetries,
		}, store, outbox.EndpointFunc(func(context.Context, outbox.Record) error {
			return fmt.Errorf("no endpoint configured")
		}))
		if err != nil {
			return err
		}

		id, err := mgr.Enqueue(cmd.Context(), recordType, payload)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"record_id": id,
			"pending":   mgr.PendingCount(),
		})
	},
}

// --- capabilities ---

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Probe connectivity once and print the capability manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		monitor := connectivity.NewMonitor(connectivity.Config{
			ProbeTimeout: settings.ProbeTimeout.Std(),
			DialAddress:  settings.DialAddress,
			ProbeURLs:    settings.ProbeURLs,
		})
		negotiator := capability.NewNegotiator(monitor, nil)

		monitor.UpdateStatus(cmd.Context())

		return printJSON(map[string]any{
			"network":      monitor.Snapshot(),
			"capabilities": negotiator.Capabilities(),
		})
	},
}

func init() {
	enqueueCmd.Flags().String("type", "", "record type tag (e.g. practice_answer)")
	enqueueCmd.Flags().String("data", "", "JSON payload")
}
