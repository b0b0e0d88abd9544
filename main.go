// Command enginewatch serves live engine telemetry: it refreshes sensor
// snapshots from the analysis service, accepts pushed batches, and fans every
// committed snapshot out to WebSocket, telnet, MQTT and recorder subscribers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enginewatch/analysis"
	"enginewatch/broadcast"
	"enginewatch/config"
	"enginewatch/httpapi"
	"enginewatch/logging"
	"enginewatch/metrics"
	"enginewatch/mqttbridge"
	"enginewatch/recorder"
	"enginewatch/stats"
	"enginewatch/store"
	"enginewatch/strutil"
	"enginewatch/telemetry"
	"enginewatch/telnet"
	"enginewatch/viewer"
)

// Version is set at build time.
var Version = "dev"

const (
	envConfigPath     = "ENGINEWATCH_CONFIG"
	defaultConfigPath = "data/config/enginewatch.yaml"
	shutdownTimeout   = 5 * time.Second
)

// Purpose: Resolve the config path from flag, env, then default.
// Key aspects: An explicit flag wins over the environment.
// Upstream: main startup.
// Downstream: os.Getenv.
func resolveConfigPath(flagValue string) string {
	return strutil.FirstNonEmpty(flagValue, os.Getenv(envConfigPath), defaultConfigPath)
}

// Purpose: Program entrypoint; wires configuration, the telemetry pipeline and
// its transports, and manages graceful shutdown.
// Upstream: OS process start.
// Downstream: run.
func main() {
	configFlag := flag.String("config", "", "path to YAML config (env "+envConfigPath+")")
	flag.Parse()

	path := resolveConfigPath(*configFlag)
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Error loading config %s: %v", path, err)
	}

	fanout, err := logging.Setup(cfg.Logging, os.Stdout)
	if err != nil {
		log.Printf("Logging: file sink disabled: %v", err)
	}
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()

	log.Printf("Engine watch v%s starting (config %s)", Version, path)
	cfg.Print()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Printf("Fatal: %v", err)
		fanout.Close()
		os.Exit(1)
	}
}

// Purpose: Build every component from cfg and serve until ctx is done.
// Key aspects: Optional transports (telnet, MQTT, recorder) are skipped when
// disabled; shutdown stops the refresher before closing subscribers.
// Upstream: main.
// Downstream: telemetry.Service, httpapi.Server, broadcast.Hub and friends.
func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	tracker := stats.NewTracker()
	hub := broadcast.NewHub(m)

	analyzer, err := analysis.NewClient(analysis.Options{
		BaseURL: cfg.Analysis.BaseURL,
		Timeout: cfg.AnalysisTimeout(),
	})
	if err != nil {
		return fmt.Errorf("analysis client: %w", err)
	}
	svc, err := telemetry.NewService(telemetry.Options{
		Store:     store.New(),
		Publisher: hub,
		Analyzer:  analyzer,
		Metrics:   m,
		Stats:     tracker,
	})
	if err != nil {
		return fmt.Errorf("telemetry service: %w", err)
	}

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		rec, err = recorder.Open(cfg.Recorder.Path, cfg.Recorder.PerSensorLimit, m)
		if err != nil {
			log.Printf("Recorder: disabled: %v", err)
		} else {
			hub.Subscribe("recorder", rec)
			defer rec.Close()
		}
	}

	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		bridge, err = mqttbridge.Connect(mqttbridge.Options{
			Broker:   cfg.MQTT.Broker,
			Port:     cfg.MQTT.Port,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      byte(cfg.MQTT.QoS),
			Metrics:  m,
		})
		if err != nil {
			log.Printf("MQTT: mirror disabled: %v", err)
		} else {
			hub.Subscribe("mqtt", bridge)
			defer bridge.Close()
		}
	}

	var telnetServer *telnet.Server
	if cfg.Telnet.Enabled {
		locale, ok := viewer.LookupLocale(cfg.Telnet.Locale)
		if !ok {
			log.Printf("Telnet: unknown locale %q, using %s", cfg.Telnet.Locale, locale.Name)
		}
		telnetServer = telnet.NewServer(telnet.ServerOptions{
			Addr:           fmt.Sprintf(":%d", cfg.Telnet.Port),
			MaxConnections: cfg.Telnet.MaxConnections,
			UseZiutek:      cfg.Telnet.UseZiutek,
			WelcomeMessage: cfg.Telnet.WelcomeMessage,
			SparkWidth:     cfg.Telnet.SparkWidth,
			Locale:         locale,
			Metrics:        m,
		}, hub)
		if err := telnetServer.Start(); err != nil {
			return err
		}
		defer telnetServer.Stop()
	}

	ws := broadcast.NewWSHandler(hub, broadcast.WSOptions{
		ClientBuffer: cfg.Broadcast.ClientBuffer,
		PingInterval: time.Duration(cfg.Broadcast.PingSeconds) * time.Second,
		Metrics:      m,
		OnDrop:       tracker.RecordDrop,
	})
	api := httpapi.NewServer(httpapi.Deps{
		Service: svc,
		Alerts:  ws,
		Metrics: m.Handler(),
		Health: func() any {
			return buildHealth(time.Now(), tracker, hub, cfg.RefreshInterval())
		},
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP: listening on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	refresher := telemetry.NewRefresher(svc, cfg.RefreshInterval())
	if err := refresher.Start(ctx); err != nil {
		return err
	}
	go displayStats(ctx, time.Duration(cfg.Stats.IntervalSeconds)*time.Second, tracker, hub, bridge)
	startFreshnessMonitor(ctx, freshnessInterval, func() freshnessSnapshot {
		return freshnessFromTracker(tracker, hub, cfg.RefreshInterval())
	})

	log.Printf("Engine watch is running. Viewers connect to ws://<host>%s/alerts", cfg.Server.HTTPAddr)
	if telnetServer != nil {
		log.Printf("Connect via: telnet localhost %d", cfg.Telnet.Port)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	refresher.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP: shutdown: %v", err)
	}
	for _, line := range tracker.SnapshotLines() {
		log.Println(line)
	}
	return runErr
}

// Purpose: Periodically log the stats snapshot lines.
// Key aspects: Runs on ticker interval until ctx is done.
// Upstream: run.
// Downstream: stats.Tracker.SnapshotLines.
func displayStats(ctx context.Context, interval time.Duration, tracker *stats.Tracker, hub *broadcast.Hub, bridge *mqttbridge.Bridge) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, line := range tracker.SnapshotLines() {
				log.Println(line)
			}
			line := fmt.Sprintf("Subscribers: %d", hub.Count())
			if bridge != nil {
				published, failed := bridge.Counts()
				line += fmt.Sprintf(" | MQTT published=%d failed=%d", published, failed)
			}
			log.Println(line)
		}
	}
}
