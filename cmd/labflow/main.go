// LabFlow Core - Laboratory Automation Engine
//
// This is the main entry point for the LabFlow Core service. LabFlow
// executes sequences of instrument operations (sweeps, loops,
// concurrent branches) against a registered instrument bench, persists
// run history, publishes progress over MQTT and WebSocket, and records
// readings to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	_ "github.com/nerrad567/labflow-core/migrations"

	"github.com/nerrad567/labflow-core/internal/api"
	"github.com/nerrad567/labflow-core/internal/databin"
	"github.com/nerrad567/labflow-core/internal/infrastructure/config"
	"github.com/nerrad567/labflow-core/internal/infrastructure/database"
	"github.com/nerrad567/labflow-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/labflow-core/internal/infrastructure/logging"
	"github.com/nerrad567/labflow-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/labflow-core/internal/sequence"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LabFlow Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Assemble the instrument bench
	bench, err := buildBench()
	if err != nil {
		return fmt.Errorf("building instrument bench: %w", err)
	}
	bench.SetLogger(log)
	log.Info("instrument bench ready", "instruments", bench.Count())

	// Create the execution engine
	repo := sequence.NewSQLiteRepository(db.DB)
	engine := sequence.NewEngine(bench, repo)
	engine.SetLogger(log)
	engine.SetPollInterval(cfg.PollInterval())
	engine.SetJoinTimeout(cfg.JoinTimeout())

	for _, seq := range premadeSequences() {
		engine.AddSequence(seq)
	}
	log.Info("sequence catalogue loaded", "sequences", len(premadeSequences()))

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// External interrupt source: labflow/interrupt/{run}
		if subErr := subscribeInterrupts(mqttClient, engine, byte(cfg.MQTT.QoS), log); subErr != nil {
			return fmt.Errorf("subscribing to interrupts: %w", subErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Engine:   engine,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Wire run telemetry to its consumers: the WebSocket hub always,
	// MQTT and InfluxDB when enabled.
	wireObservers(engine, server.Hub(), mqttClient, influxClient, byte(cfg.MQTT.QoS), log)

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("LabFlow Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LABFLOW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LABFLOW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// subscribeInterrupts routes MQTT interrupt messages to the engine.
// Topic: labflow/interrupt/{run}. A payload of "cancel" cancels the
// run; anything else delivers an interrupt signal.
func subscribeInterrupts(client *mqtt.Client, engine *sequence.Engine, qos byte, log *logging.Logger) error {
	topics := mqtt.Topics{}
	return client.Subscribe(topics.AllRunInterrupts(), qos, func(topic string, payload []byte) error {
		parts := strings.Split(topic, "/")
		runID := parts[len(parts)-1]

		var err error
		if strings.EqualFold(strings.TrimSpace(string(payload)), "cancel") {
			err = engine.Cancel(runID)
		} else {
			err = engine.Interrupt(runID)
		}
		if err != nil {
			// Not fatal: the run may have finished between publish and delivery
			log.Warn("interrupt for inactive run", "run_id", runID, "error", err)
		} else {
			log.Info("run signalled via MQTT", "run_id", runID)
		}
		return nil
	})
}

// wireObservers fans run telemetry out to the WebSocket hub and, when
// configured, the MQTT broker and InfluxDB. Observers run on the
// engine's goroutines and must stay non-blocking; both clients queue
// internally.
func wireObservers(engine *sequence.Engine, hub *api.Hub, mqttClient *mqtt.Client, influxClient *influxdb.Client, qos byte, log *logging.Logger) {
	topics := mqtt.Topics{}

	engine.SetBroadcaster(hub)

	engine.SetStatusObserver(func(runID, monitor, message string, posted bool) {
		hub.StatusUpdate(runID, monitor, message, posted)
		if mqttClient != nil {
			if err := mqttClient.PublishString(topics.RunStatus(runID, monitor), message, qos, false); err != nil {
				log.Warn("failed to publish status", "run_id", runID, "monitor", monitor, "error", err)
			}
		}
	})

	engine.SetBinObserver(func(runID string, ref databin.Ref, value string) {
		hub.BinUpdate(runID, ref, value)
		if mqttClient != nil {
			topic := topics.RunReading(runID, string(ref.Kind), ref.Name)
			if err := mqttClient.PublishString(topic, value, qos, false); err != nil {
				log.Warn("failed to publish reading", "run_id", runID, "bin", ref.String(), "error", err)
			}
		}
		if influxClient != nil {
			// Only numeric bin values are recorded as points
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				influxClient.WriteBinValue(runID, string(ref.Kind), ref.Name, v)
			}
		}
	})
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
