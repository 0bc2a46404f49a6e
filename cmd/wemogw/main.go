// wemogw is the smart-outlet gateway.
//
// It accepts authenticated command messages from peer processes on a
// single local port, resolves the named outlet through its device
// registry, switches or reads it via the device bridge on the MQTT bus,
// and acknowledges each command to the sender's port. A kill code (999)
// ends the process after its acknowledgement is sent.
//
// Usage:
//
//	wemogw                          run the gateway
//	wemogw token -subject ops       print an admin API bearer token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/wemo-gateway/internal/api"
	"github.com/nerrad567/wemo-gateway/internal/auth"
	"github.com/nerrad567/wemo-gateway/internal/channel"
	"github.com/nerrad567/wemo-gateway/internal/device"
	"github.com/nerrad567/wemo-gateway/internal/dispatch"
	"github.com/nerrad567/wemo-gateway/internal/driver/bridge"
	"github.com/nerrad567/wemo-gateway/internal/infrastructure/config"
	"github.com/nerrad567/wemo-gateway/internal/infrastructure/database"
	"github.com/nerrad567/wemo-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/wemo-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/wemo-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/wemo-gateway/internal/journal"
	"github.com/nerrad567/wemo-gateway/internal/session"
	"github.com/nerrad567/wemo-gateway/internal/sidecar"
	"github.com/nerrad567/wemo-gateway/internal/telemetry"
	"github.com/nerrad567/wemo-gateway/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the gateway together and blocks until a kill code is
// processed or ctx is cancelled. Both are clean exits.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting wemo gateway", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level, "output", cfg.Logging.Output)

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
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected, bridge requests will time out until it returns", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridgeProc, err := startSidecar(ctx, cfg.Driver.Sidecar, log)
	if err != nil {
		return err
	}
	if bridgeProc != nil {
		defer func() {
			if stopErr := bridgeProc.Stop(); stopErr != nil {
				log.Error("error stopping device bridge", "error", stopErr)
			}
		}()
	}

	drv, err := bridge.New(mqttClient, bridge.Config{
		Protocol: cfg.Driver.Protocol,
		Timeout:  cfg.GetDriverTimeout(),
		QoS:      byte(cfg.MQTT.QoS),
	})
	if err != nil {
		return fmt.Errorf("starting device bridge driver: %w", err)
	}
	defer drv.Close() //nolint:errcheck // shutdown path
	drv.SetLogger(log)

	registry := device.NewRegistry(drv, device.WithRediscoveryAttempts(cfg.Registry.RediscoveryAttempts))
	registry.SetLogger(log)

	sinks, err := openSinks(ctx, cfg, mqttClient, log)
	if err != nil {
		return err
	}
	defer sinks.close()
	if bridgeProc != nil {
		sinks.checks["device_bridge"] = bridgeProc
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.API.WebSocket, log)
		sinks.observers = append(sinks.observers, hub)
	}

	opts := []dispatch.Option{dispatch.WithLogger(log)}
	for _, o := range sinks.observers {
		opts = append(opts, dispatch.WithObserver(o))
	}
	gw := dispatch.NewGateway(strconv.Itoa(cfg.Gateway.Port), registry)
	dispatcher := dispatch.New(gw, opts...)

	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Registry: registry,
			Gateway:  gw,
			Journal:  sinks.journal,
			Checks:   sinks.checks,
			Hub:      hub,
			Version:  version,
		})
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
	}

	authKey := []byte(cfg.Gateway.AuthKey)
	listener, err := channel.Listen(channel.Config{
		Host:             cfg.Gateway.Host,
		Port:             cfg.Gateway.Port,
		AuthKey:          authKey,
		HandshakeTimeout: cfg.GetHandshakeTimeout(),
		ReadTimeout:      cfg.GetReadTimeout(),
		WriteTimeout:     cfg.GetWriteTimeout(),
		MaxFrameSize:     cfg.Gateway.MaxFrameSize,
	})
	if err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	transport := session.NewChannelTransport(listener, channel.Config{
		Host:             cfg.Gateway.AckHost,
		AuthKey:          authKey,
		HandshakeTimeout: cfg.GetHandshakeTimeout(),
		ReadTimeout:      cfg.GetReadTimeout(),
		WriteTimeout:     cfg.GetWriteTimeout(),
	})
	defer transport.Close() //nolint:errcheck // shutdown path
	log.Info("listening for peers", "address", listener.Addr().String(), "ack_host", cfg.Gateway.AckHost)

	loop := session.NewLoop(transport, dispatcher)
	loop.SetLogger(log)

	err = loop.Run(ctx)
	switch {
	case err == nil:
		log.Info("kill code processed, shutting down", "devices", registry.Count())
		return nil
	case errors.Is(err, context.Canceled):
		log.Info("shutdown signal received, stopping")
		return nil
	default:
		return fmt.Errorf("session loop: %w", err)
	}
}

// sinks are the optional consumers of dispatch events and the health
// checks the admin API reports for them.
type sinks struct {
	observers []dispatch.Observer
	journal   journal.Repository
	checks    map[string]api.HealthChecker
	closers   []func()
}

func (s *sinks) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openSinks opens the journal, metrics and state publishing sinks that
// the configuration enables. On error everything already opened is closed.
func openSinks(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (*sinks, error) {
	s := &sinks{checks: map[string]api.HealthChecker{"mqtt": mqttClient}}

	if cfg.Journal.Enabled {
		db, err := database.Open(cfg.Journal.Database)
		if err != nil {
			return nil, fmt.Errorf("opening journal database: %w", err)
		}
		s.closers = append(s.closers, func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		})
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			s.close()
			return nil, fmt.Errorf("running journal migrations: %w", err)
		}
		s.journal = journal.NewSQLiteRepository(db.DB)
		s.observers = append(s.observers, journal.NewObserver(s.journal))
		s.checks["journal"] = db
		log.Info("command journal enabled", "path", db.Path())
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		s.closers = append(s.closers, func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		})
		s.observers = append(s.observers, telemetry.NewMetrics(influxClient))
		s.checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.MQTT.PublishState {
		s.observers = append(s.observers, telemetry.NewStatePublisher(mqttClient))
		log.Info("publishing device state to MQTT")
	}

	return s, nil
}

// startSidecar launches the local device bridge process when one is
// configured. It returns nil when the bridge runs elsewhere.
func startSidecar(ctx context.Context, cfg config.SidecarConfig, log *logging.Logger) (*sidecar.Supervisor, error) {
	if len(cfg.Command) == 0 {
		return nil, nil //nolint:nilnil // no sidecar configured
	}

	sv := sidecar.New(sidecar.Config{
		Name:            "device-bridge",
		Command:         cfg.Command,
		Env:             cfg.Env,
		Restart:         true,
		MaxRestarts:     cfg.MaxRestarts,
		RestartDelay:    time.Duration(cfg.RestartDelay) * time.Second,
		MaxRestartDelay: time.Duration(cfg.MaxRestartDelay) * time.Second,
	})
	sv.SetLogger(log)
	if err := sv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting device bridge: %w", err)
	}
	log.Info("device bridge launched", "command", cfg.Command[0], "pid", sv.Stats().PID)
	return sv, nil
}

// runToken prints a signed admin API token using the configured secret.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "", "who the token is issued to (required)")
	role := fs.String("role", string(auth.RoleViewer), "viewer or admin")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: api.jwt.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.JWT.Secret == "" {
		return fmt.Errorf("api.jwt.secret is not set (set WEMOGW_JWT_SECRET environment variable)")
	}
	if *ttl <= 0 {
		*ttl = time.Duration(cfg.API.JWT.TokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(*subject, auth.Role(*role), cfg.API.JWT.Secret, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns WEMOGW_CONFIG, or the default path.
func getConfigPath() string {
	if path := os.Getenv("WEMOGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
