package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"artemis/auth"
	"artemis/internal/config"
	"artemis/internal/db"
	"artemis/internal/engine"
	"artemis/internal/mcp"
	"artemis/internal/mqtt"
	"artemis/internal/persist"
	"artemis/internal/redis"
	"artemis/internal/remote"
	"artemis/internal/taskqueue"
	"artemis/internal/utils"
	"artemis/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/pion/mdns/v2"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.App.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var eng *engine.Engine
	var mqttClient mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewMQTTClient(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			OnConnectionChange: func(connected bool) {
				if eng != nil {
					eng.SetConnected(connected)
				}
			},
		}, logger)
	}

	eng = engine.NewEngine(engine.Options{
		Logger:            logger,
		MQTT:              mqttClient,
		EventsTopic:       cfg.MQTT.EventsTopic,
		DecisionsTopic:    cfg.MQTT.DecisionsTopic,
		QoS:               cfg.MQTT.QoS,
		Store:             store,
		PersistDebounce:   cfg.Storage.Debounce,
		ReasoningCapacity: cfg.Interaction.ReasoningCapacity,
		LoopBuffer:        cfg.Interaction.LoopBuffer,
		Watchdog: mcp.WatchdogConfig{
			ProcessingTimeout: cfg.Interaction.ProcessingTimeout,
			ExecutingTimeout:  cfg.Interaction.ExecutingTimeout,
			Interval:          cfg.Interaction.WatchdogInterval,
		},
		SchedulerEnabled: cfg.Automation.SchedulerEnabled,
		Location:         loc,
	})

	if cfg.TaskQueue.Enabled {
		workers := taskqueue.NewWorkers(taskqueue.Options{
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Queue:         cfg.TaskQueue.Queue,
			Concurrency:   cfg.TaskQueue.Concurrency,
		}, eng, logger)
		if err := workers.Start(); err != nil {
			return err
		}
		defer workers.Stop()
		eng.SetDeferrer(workers.Deferrer())
	}

	if mqttClient != nil {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := mqttClient.Connect(connectCtx)
		cancel()
		if err != nil {
			// The client keeps retrying; the assistant runs offline until then.
			logger.Warn("MQTT broker unavailable at startup", "error", err)
			eng.SetConnected(false)
		}
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	authModule := auth.NewAuthModule(cfg.JWT.PairingHash, cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	if !authModule.Enabled() {
		logger.Warn("No pairing passphrase configured, API is open to the local network")
	}
	gin.SetMode(gin.ReleaseMode)
	webServer, err := web.NewWebServer(eng, authModule, cfg.Interaction.BroadcastDebounce, logger)
	if err != nil {
		return err
	}

	if cfg.MDNS.Enabled {
		server, err := startMDNSServer(cfg.MDNS.Name)
		if err != nil {
			logger.Warn("mDNS advertisement unavailable", "error", err)
		} else {
			logger.Info("Advertising on mDNS", "name", cfg.MDNS.Name)
			defer server.Close() //nolint:errcheck
		}
	}

	if cfg.App.RemoteAccess.Enabled {
		agent := remote.NewAgent(remote.Config{
			PublicWS: cfg.App.RemoteAccess.URL,
			LocalURL: localURL(cfg.App.HTTPAddr),
			AgentID:  cfg.App.RemoteAccess.AgentID,
		}, logger)
		go agent.Run(ctx)
	} else {
		logger.Info("Remote access relay is disabled")
	}

	if err := webServer.Run(ctx, cfg.App.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (persist.Store, error) {
	logger.Info("Opening storage", "driver", cfg.Storage.Driver)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := persist.OpenSQLite(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverRedis:
		client, err := redis.NewRedisClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return nil, err
		}
		return persist.NewRedisStore(client, cfg.Storage.RedisPrefix), nil
	case config.DriverPostgres:
		store, err := db.NewDB(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn("Memory storage selected, nothing survives a restart")
		return persist.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// localURL turns a listen address into a URL the relay agent can dial
func localURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://127.0.0.1" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func startMDNSServer(localName string) (*mdns.Conn, error) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, fmt.Errorf("resolve mDNS udp4 address: %w", err)
	}
	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		return nil, fmt.Errorf("resolve mDNS udp6 address: %w", err)
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return nil, fmt.Errorf("listen mDNS udp4: %w", err)
	}
	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		l4.Close() //nolint:errcheck
		return nil, fmt.Errorf("listen mDNS udp6: %w", err)
	}

	return mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{strings.TrimSuffix(localName, ".")},
	})
}
