package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/whep-gateway/internal/api"
	"github.com/nerrad567/whep-gateway/internal/audit"
	"github.com/nerrad567/whep-gateway/internal/bridges/upstream"
	"github.com/nerrad567/whep-gateway/internal/device"
	"github.com/nerrad567/whep-gateway/internal/events"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/config"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/database"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/listener"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/whep-gateway/internal/lifecycle"
	"github.com/nerrad567/whep-gateway/internal/refresh"
	"github.com/nerrad567/whep-gateway/internal/taskgroup"
	"github.com/nerrad567/whep-gateway/internal/token"
	_ "github.com/nerrad567/whep-gateway/migrations"
)

// healthCheckTimeout bounds the start-up health check.
const healthCheckTimeout = 5 * time.Second

// refreshCommand is the MQTT command that forces a device refresh.
const refreshCommand = "refresh"

// runServe is the RunE of the root and serve commands.
func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	return run(cmd.Context(), cfg)
}

// run starts the gateway and blocks until ctx is cancelled or an admin
// requests shutdown.
//
// Start-up order:
//  1. Database (audit trail, optional token store)
//  2. Upstream credentials and client
//  3. Registry, event bus and sinks (audit, MQTT, InfluxDB, WebSocket)
//  4. Event bus, refresh supervisor and session task group as server
//     hooks, so the bus is drained after everything that publishes to it
//  5. Listeners and HTTP server
//
// Shutdown runs in reverse: HTTP first, then the hooks within the
// configured grace period. A hook that overruns is returned as an error.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - cfg: Validated configuration
//
// Returns:
//   - error: Start-up failure or unclean shutdown
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting whep gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Upstream client
	client, err := newUpstreamClient(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	// Registry and events
	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	bus := events.NewBus()
	bus.SetLogger(log.Component("events"))
	auditRepo := audit.NewSQLiteRepository(db.DB)
	bus.Add("audit", audit.NewSink(auditRepo))

	sup := refresh.New(client, registry, refresh.Config{
		UpdateInterval:  cfg.UpdateInterval(),
		BackoffInterval: cfg.BackoffInterval(),
	})
	sup.SetLogger(log.Component("refresh"))
	sup.SetPublisher(bus)

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, sup, log)
		if err != nil {
			return err
		}
		defer mqttClient.Close()
		bus.Add("mqtt", events.NewMQTTSink(mqttClient, mqttClient.Topics(), mqttClient.DefaultQoS()))
	}

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("influxdb disabled")
	case err != nil:
		return fmt.Errorf("connecting to influxdb: %w", err)
	default:
		defer influxClient.Close()
		influxClient.SetOnError(func(err error) {
			log.Error("influxdb write failed", "error", err)
		})
		bus.Add("influxdb", events.NewMetricsSink(influxClient))
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL)
	}

	// Background work bound to the server lifecycle
	refresher := lifecycle.NewBinder("device-refresh", sup.Run)
	refresher.SetLogger(log.Component("lifecycle"))

	monitors := taskgroup.New("session-monitors")
	monitors.SetLogger(log.Component("sessions"))
	monitors.OnDone(reportDrained(log.Component("sessions")))

	hub := api.NewHub(cfg.WebSocket, log)
	bus.Add("websocket", hub)

	// Listeners
	addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	listeners, activated, err := listener.Resolve(addr, cfg.API.SocketActivation)
	if err != nil {
		return fmt.Errorf("resolving listeners: %w", err)
	}
	if activated {
		log.Info("using socket-activated listeners", "count", len(listeners))
	}

	ctx, requestShutdown := context.WithCancel(ctx)
	defer requestShutdown()

	server, err := api.New(api.Deps{
		Config:          cfg.API,
		WHEP:            cfg.WHEP,
		WebSocket:       cfg.WebSocket,
		Security:        cfg.Security,
		Logger:          log,
		Registry:        registry,
		Client:          client,
		Refresher:       sup,
		Tasks:           monitors,
		Events:          bus,
		Hub:             hub,
		Audit:           auditRepo,
		Hooks:           []lifecycle.Hook{bus, refresher, monitors},
		Listeners:       listeners,
		RequestShutdown: requestShutdown,
		ShutdownGrace:   cfg.ShutdownGrace(),
		Version:         version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	hcCtx, cancelHC := context.WithTimeout(ctx, healthCheckTimeout)
	err = healthCheck(hcCtx, db, server, mqttClient, influxClient)
	cancelHC()
	if err != nil {
		log.Warn("start-up health check failed", "error", err)
	}

	log.Info("whep gateway started", "addresses", server.Addrs())

	<-ctx.Done()
	log.Info("shutdown requested")

	if err := server.Close(); err != nil {
		log.Error("unclean shutdown", "error", err)
		return fmt.Errorf("shutting down: %w", err)
	}

	log.Info("whep gateway stopped")
	return nil
}

// newUpstreamClient loads the stored credentials and builds the device
// client around a refreshing OAuth transport.
func newUpstreamClient(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*upstream.Client, error) {
	var store token.Store
	switch cfg.Upstream.TokenStore {
	case "sqlite":
		store = token.NewSQLiteStore(db.DB, token.DefaultTokenName)
	default:
		store = token.NewFileStore(cfg.Upstream.TokenFile)
	}

	initial, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading upstream credentials: %w", err)
	}

	timeout := time.Duration(cfg.Upstream.Timeout) * time.Second
	hc := upstream.NewOAuthHTTPClient(context.WithoutCancel(ctx), upstream.OAuthConfig{
		ClientID: cfg.Upstream.ClientID,
		TokenURL: cfg.Upstream.TokenURL,
		Timeout:  timeout,
	}, initial, store, log.Component("token"))

	client, err := upstream.New(cfg.Upstream.BaseURL,
		upstream.WithHTTPClient(hc),
		upstream.WithUserAgent(cfg.Upstream.UserAgent),
		upstream.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating upstream client: %w", err)
	}
	return client, nil
}

// connectMQTT connects to the broker and subscribes to the refresh command.
func connectMQTT(cfg config.MQTTConfig, sup *refresh.Supervisor, log *logging.Logger) (*mqtt.Client, error) {
	c, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to mqtt: %w", err)
	}
	c.SetLogger(log.Component("mqtt"))

	topic := c.Topics().Command(refreshCommand)
	err = c.Subscribe(topic, c.DefaultQoS(), func(string, []byte) error {
		log.Info("refresh requested over mqtt", "topic", topic)
		sup.Trigger()
		return nil
	})
	if err != nil {
		c.Close() //nolint:errcheck,gosec // error path cleanup
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	log.Info("mqtt connected", "broker", cfg.Broker.Host, "command_topic", topic)
	return c, nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Optional clients are skipped when nil.
//
// Parameters:
//   - ctx: Context for timeout
//   - db: Database connection
//   - server: Started API server
//   - mqttClient: MQTT client, nil when disabled
//   - influxClient: InfluxDB client, nil when disabled
//
// Returns:
//   - error: First unhealthy component
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
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

// reportDrained logs how many session monitors a drain waited for.
func reportDrained(log *logging.Logger) func(*taskgroup.Group) {
	return func(g *taskgroup.Group) {
		log.Info("session monitors drained", "group", g.Name(), "tasks", g.Drained())
	}
}
