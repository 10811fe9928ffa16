// n2kmonitor - NMEA 2000 bus monitor
//
// This is the main entry point for the monitor. It receives assembled frames
// from CAN gateways over MQTT, tracks the nodes on the bus through their
// address claims, and publishes device changes to MQTT, WebSocket clients
// and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/n2k-monitor/internal/api"
	"github.com/nerrad567/n2k-monitor/internal/bridges/canbus"
	"github.com/nerrad567/n2k-monitor/internal/device"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/config"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/influxdb"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/logging"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/metrics"
	"github.com/nerrad567/n2k-monitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/n2k-monitor/internal/lookup"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configEnvVar names the environment variable holding the config path.
const configEnvVar = "N2KMON_CONFIG"

// options are the command-line flags.
type options struct {
	configPath  string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("n2kmonitor %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command-line arguments.
func parseFlags(args []string) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("n2kmonitor", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file (env "+configEnvVar+")")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logging.Default()
	log.Info("starting n2kmonitor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(opts.configPath)
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("no configuration file, using defaults")
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	tables, err := lookup.Load(cfg.Lookup.DefinitionsFile)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}
	log.Info("definitions loaded",
		"manufacturers", tables.Manufacturers.Len(),
		"classes", tables.Classes.Len(),
	)

	registry := device.NewRegistry()
	registry.SetLogger(log.With("component", "registry"))
	registry.SetLabeler(tables)

	m := metrics.New()
	m.ObserveRegistry(registry)

	g, gctx := errgroup.WithContext(ctx)

	hub := api.NewHub(cfg.WebSocket, log)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

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

	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Registry:    registry,
		MQTT:        mqttClient,
		Metrics:     m,
		ExternalHub: hub,
		Version:     version,
	}

	if cfg.CANBus.Enabled {
		bridge, bridgeErr := startCANBusBridge(gctx, cfg, registry, mqttClient, influxClient, hub, m, log)
		if bridgeErr != nil {
			return fmt.Errorf("starting CAN bus bridge: %w", bridgeErr)
		}
		defer func() {
			log.Info("stopping CAN bus bridge")
			bridge.Stop()
		}()
		deps.Bridge = bridge
	} else {
		log.Info("CAN bus bridge disabled")
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(gctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("n2kmonitor stopped")
	return nil
}

// getConfigPath returns the configuration file path: the flag, then the
// N2KMON_CONFIG environment variable. Empty means built-in defaults.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(configEnvVar)
}

// loadConfig loads path, or the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// connectInflux connects to InfluxDB. It returns a nil client when InfluxDB
// is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	if err != nil {
		return nil, err
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

// startCANBusBridge creates and starts the frame bridge.
func startCANBusBridge(
	ctx context.Context,
	cfg *config.Config,
	registry *device.Registry,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
	hub *api.Hub,
	m *metrics.Metrics,
	log *logging.Logger,
) (*canbus.Bridge, error) {
	var telemetry canbus.Telemetry
	if influxClient != nil {
		telemetry = influxClient
	}

	bridge, err := canbus.NewBridge(canbus.BridgeOptions{
		Config:      cfg.CANBus,
		Version:     version,
		MQTTClient:  &mqttBridgeAdapter{client: mqttClient},
		Registry:    registry,
		Broadcaster: hub,
		Telemetry:   telemetry,
		Metrics:     m,
		Logger:      log.With("component", "canbus"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("CAN bus bridge started", "frame_topic", cfg.CANBus.FrameTopic)

	return bridge, nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Bridge handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements canbus.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements canbus.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements canbus.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
