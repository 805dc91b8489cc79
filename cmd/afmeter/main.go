// AF Meter Core collects readings from power meters, stores them, and pushes
// them live to dashboards.
//
// Readings arrive over HTTP, WebSocket or MQTT; every accepted batch is
// persisted and fanned out to connected observers. A guarded proxy lets the
// dashboard poll devices on the local network.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/afmeter-core/internal/api"
	"github.com/nerrad567/afmeter-core/internal/dashboard"
	"github.com/nerrad567/afmeter-core/internal/device"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/database"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/logging"
	"github.com/nerrad567/afmeter-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/afmeter-core/internal/proxy"
	"github.com/nerrad567/afmeter-core/internal/reading"
	"github.com/nerrad567/afmeter-core/internal/realtime"
	"github.com/nerrad567/afmeter-core/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	explicit    bool
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("afmeter", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts options
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default $AFMETER_CONFIG or "+defaultConfigPath+")")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch {
	case opts.configPath != "":
		opts.explicit = true
	case os.Getenv("AFMETER_CONFIG") != "":
		opts.configPath = os.Getenv("AFMETER_CONFIG")
		opts.explicit = true
	default:
		opts.configPath = defaultConfigPath
	}
	return opts, nil
}

// loadConfig reads an explicitly named file strictly; the default path may
// be absent, in which case built-in defaults apply.
func loadConfig(opts options) (*config.Config, error) {
	if opts.explicit {
		return config.Load(opts.configPath)
	}
	return config.LoadOrDefault(opts.configPath)
}

// run is the application, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "afmeter %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting AF Meter Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.NewWithWriter(logging.Output(cfg.Logging, stdout), cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	st, err := store.New(ctx, store.Options{
		Backend: cfg.Storage.Backend,
		DataDir: cfg.Storage.DataDir,
		Database: database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		},
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store opened", "backend", cfg.Storage.Backend)

	if err := st.EnsureDefaultSettings(ctx, reading.Settings(cfg.Settings.Defaults)); err != nil {
		return fmt.Errorf("seeding default settings: %w", err)
	}

	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	broadcaster := realtime.New(st, registry, hub)
	broadcaster.SetLogger(log.With("component", "broadcaster"))

	gateway := proxy.NewGateway(proxy.Config{
		Timeout:      cfg.Proxy.Timeout,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
	})
	gateway.SetLogger(log.With("component", "proxy"))

	var mqttStatus, influxStatus api.ConnectionStatus

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := startMQTT(ctx, cfg.MQTT, broadcaster, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttStatus = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("InfluxDB health check failed: %w", err)
		}
		broadcaster.SetMirror(influxClient)
		influxStatus = influxClient
		log.Info("InfluxDB mirror enabled",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Hub:         hub,
		Broadcaster: broadcaster,
		Registry:    registry,
		Store:       st,
		Proxy:       gateway,
		MQTT:        mqttStatus,
		InfluxDB:    influxStatus,
		Version:     version,
	}
	if cfg.Dashboard.Enabled {
		deps.Dashboard = dashboard.Handler(cfg.Dashboard.Dir)
		log.Info("dashboard enabled", "source", dashboard.Source(cfg.Dashboard.Dir))
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := st.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	// Deferred closes run in reverse: API server, InfluxDB, MQTT, store.
	return nil
}

// startMQTT connects to the broker and subscribes to device readings.
func startMQTT(ctx context.Context, cfg config.MQTTConfig, ing mqtt.Ingester, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))

	if err := client.SubscribeReadings(ctx, ing); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("subscribing to readings: %w", err)
	}
	if err := client.HealthCheck(ctx); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("MQTT health check failed: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic", client.Topics().AllReadings(),
	)
	return client, nil
}
