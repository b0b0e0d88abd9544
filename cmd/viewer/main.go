// Command viewer subscribes to the engine watch broadcast channel and draws
// the live dashboard in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"enginewatch/config"
	"enginewatch/logging"
	"enginewatch/sensor"
	"enginewatch/strutil"
	"enginewatch/ui"
	"enginewatch/viewer"

	"golang.org/x/term"
)

const (
	envConfigPath     = "ENGINEWATCH_CONFIG"
	defaultConfigPath = "data/config/enginewatch.yaml"
)

func main() {
	configFlag := flag.String("config", "", "path to YAML config (env "+envConfigPath+")")
	urlFlag := flag.String("url", "", "broadcast WebSocket URL (overrides viewer.url)")
	modeFlag := flag.String("mode", "", "surface: tview, plain or headless (overrides viewer.mode)")
	localeFlag := flag.String("locale", "", "label language: ru or en (overrides viewer.locale)")
	flag.Parse()

	path := strutil.FirstNonEmpty(*configFlag, os.Getenv(envConfigPath), defaultConfigPath)
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Error loading config %s: %v", path, err)
	}
	applyOverrides(&cfg.Viewer, *urlFlag, *modeFlag, *localeFlag)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid viewer settings: %v", err)
	}

	locale, ok := viewer.LookupLocale(cfg.Viewer.Locale)
	if !ok {
		log.Printf("Viewer: unknown locale %q, using %s", cfg.Viewer.Locale, locale.Name)
	}
	mode := selectMode(cfg.Viewer.Mode, term.IsTerminal(int(os.Stdout.Fd())))
	surface := newSurface(mode, cfg.Viewer, locale)
	surface.WaitReady()
	defer surface.Stop()

	console := surface.SystemWriter()
	if console == nil {
		console = os.Stdout
	}
	fanout, err := logging.Setup(cfg.Logging, console)
	if err != nil {
		log.Printf("Logging: file sink disabled: %v", err)
	}
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	log.Printf("Viewer: %s surface, subscribing to %s", mode, cfg.Viewer.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-surface.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	renderer := viewer.NewRenderer(locale)
	client, err := viewer.NewClient(viewer.ClientOptions{
		URL:          cfg.Viewer.URL,
		ReconnectMin: time.Duration(cfg.Viewer.ReconnectMinMS) * time.Millisecond,
		ReconnectMax: time.Duration(cfg.Viewer.ReconnectMaxMS) * time.Millisecond,
		OnStatus:     surface.SetConnection,
		OnSnapshot: func(snap sensor.Snapshot) {
			frame, err := renderer.Apply(snap)
			if err != nil {
				log.Printf("Viewer: update skipped: %v", err)
				return
			}
			surface.Render(frame)
		},
	})
	if err != nil {
		log.Fatalf("Viewer: %v", err)
	}
	surface.SetConnection(false)
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Viewer: stopped: %v", err)
	}
	log.Printf("Viewer: rendered %d snapshots, skipped %d frames", renderer.Applied(), client.Skipped())
}

// applyOverrides layers non-empty command line values over the config.
func applyOverrides(v *config.ViewerConfig, url, mode, locale string) {
	if s := strings.TrimSpace(url); s != "" {
		v.URL = s
	}
	if s := strutil.NormalizeLower(mode); s != "" {
		v.Mode = s
	}
	if s := strings.TrimSpace(locale); s != "" {
		v.Locale = s
	}
}

// selectMode falls back to plain output when tview has no terminal to draw on.
func selectMode(mode string, tty bool) string {
	if mode == config.ModeTview && !tty {
		return config.ModePlain
	}
	return mode
}

func newSurface(mode string, v config.ViewerConfig, locale viewer.Locale) ui.Surface {
	switch mode {
	case config.ModeTview:
		return ui.NewDashboard(ui.DashboardOptions{
			Locale:     locale,
			TargetFPS:  v.RefreshFPS,
			SparkWidth: v.SparkWidth,
		})
	case config.ModeHeadless:
		return ui.NewHeadless(locale)
	default:
		return ui.NewConsole(os.Stdout, locale, v.SparkWidth)
	}
}
