// Homelink Core - Device State Synchronization Service
//
// This is the main entry point for the Homelink Core daemon. It bridges
// MQTT sensor telemetry into an in-memory device state store and exposes
// that state to a voice-assistant platform through:
//   - A fulfillment webhook (discovery, state query, command dispatch)
//   - OAuth 2.0 account linking backed by SQLite
//   - Proactive report-state pushes to the vendor registry
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/willbeckett/homelink-core/migrations"

	"github.com/willbeckett/homelink-core/internal/api"
	"github.com/willbeckett/homelink-core/internal/device"
	"github.com/willbeckett/homelink-core/internal/fulfillment"
	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
	"github.com/willbeckett/homelink-core/internal/infrastructure/database"
	"github.com/willbeckett/homelink-core/internal/infrastructure/influxdb"
	"github.com/willbeckett/homelink-core/internal/infrastructure/logging"
	"github.com/willbeckett/homelink-core/internal/infrastructure/mqtt"
	"github.com/willbeckett/homelink-core/internal/ingest"
	"github.com/willbeckett/homelink-core/internal/oauth"
	"github.com/willbeckett/homelink-core/internal/provider"
	"github.com/willbeckett/homelink-core/internal/reporter"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	log.Info("starting Homelink Core",
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

	// Open database (holds OAuth grants and refresh tokens)
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

	// Build the device state store from the static registry
	store, err := device.NewStore(cfg.Devices)
	if err != nil {
		return fmt.Errorf("building device store: %w", err)
	}
	log.Info("device store initialised",
		"devices", len(store.Devices()),
		"staleness_window", store.StalenessWindow().String(),
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB telemetry mirror (optional)
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

	// Start the telemetry ingest bridge (only writer of device state)
	ingestOpts := ingest.Options{
		Bus:    mqttClient,
		Store:  store,
		Site:   cfg.Site.ID,
		QoS:    byte(cfg.MQTT.QoS),
		Logger: log,
	}
	if influxClient != nil {
		ingestOpts.Sink = influxClient
	}
	bridge, err := ingest.New(ingestOpts)
	if err != nil {
		return fmt.Errorf("building ingest bridge: %w", err)
	}
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting ingest bridge: %w", startErr)
	}
	log.Info("ingest bridge started", "site", cfg.Site.ID)

	// OAuth credential authority for account linking
	authority := oauth.NewAuthority(cfg.OAuth,
		oauth.NewGrantRepository(db.DB),
		oauth.NewTokenRepository(db.DB),
	)
	log.Info("oauth authority initialised", "clients", len(cfg.OAuth.Clients))

	// External attribute provider (optional)
	var attrProvider fulfillment.AttributeProvider
	if cfg.Provider.Enabled {
		providerClient, providerErr := provider.New(cfg.Provider)
		if providerErr != nil {
			return fmt.Errorf("building attribute provider: %w", providerErr)
		}
		attrProvider = providerClient
		log.Info("attribute provider enabled", "url", cfg.Provider.URL)
	}

	// Fulfillment intent handler. The agent user ID falls back to the
	// site ID when proactive reporting is not configured.
	agentUserID := cfg.Reporter.AgentUserID
	if agentUserID == "" {
		agentUserID = cfg.Site.ID
	}
	handler, err := fulfillment.New(fulfillment.Options{
		Store:       store,
		Provider:    attrProvider,
		AgentUserID: agentUserID,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("building fulfillment handler: %w", err)
	}

	// Proactive report-state pushes (optional)
	var stateReporter *reporter.Reporter
	if cfg.Reporter.Enabled {
		stateReporter, err = reporter.New(reporter.Options{
			Config: cfg.Reporter,
			Store:  store,
			Logger: log,
		})
		if err != nil {
			return fmt.Errorf("building reporter: %w", err)
		}
		stateReporter.Start(ctx)
		defer func() {
			log.Info("stopping reporter")
			stateReporter.Close()
		}()
	} else {
		log.Info("reporter disabled")
	}

	// HTTP server: fulfillment webhook, OAuth endpoints, health, metrics
	apiDeps := api.Deps{
		Config:      cfg.API,
		Logger:      log,
		Store:       store,
		Authority:   authority,
		Fulfillment: handler,
		Bridge:      bridge,
		MQTT:        mqttClient,
		DB:          db,
		Version:     version,
	}
	if stateReporter != nil {
		apiDeps.Reporter = stateReporter
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("building API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

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
	// 2. Reporter (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Homelink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMELINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
