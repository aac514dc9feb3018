package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"aranet4-exporter/internal/aranet"
	"aranet4-exporter/internal/ble"
	"aranet4-exporter/internal/config"
	"aranet4-exporter/internal/discovery"
	"aranet4-exporter/internal/logging"
	"aranet4-exporter/internal/metrics"
	"aranet4-exporter/internal/pinentry"
	"aranet4-exporter/internal/poll"
)

var version = "dev"

const appName = "aranet4"

const (
	modeSingle           = ""
	modeOneline          = "oneline"
	modeStreamingOneline = "streaming-oneline"
	modeService          = "service"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to TOML config")
	flag.Parse()

	mode := flag.Arg(0)
	switch mode {
	case modeSingle, modeOneline, modeStreamingOneline, modeService:
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (expected oneline, streaming-oneline or service)\n", mode)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error in %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := logging.New(level, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, mode); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "aranet4.toml"
	}
	return filepath.Join(dir, "aranet4", "config.toml")
}

func run(ctx context.Context, cfg config.Config, mode string) error {
	targets, err := cfg.Targets()
	if err != nil {
		return err
	}

	adapter, err := ble.NewAdapter(ble.WithDevice(cfg.Adapter))
	if err != nil {
		return err
	}
	defer adapter.Close()

	// Pairing may be needed mid-session; register the agent up front.
	// Without it pairing requests fail, which the session treats as
	// non-fatal anyway.
	agent, err := ble.RegisterAgent(adapter, &pinentry.Pinentry{Command: cfg.Pinentry}, slog.Default())
	if err != nil {
		slog.Warn("could not register pairing agent", "err", err)
	} else {
		defer agent.Close()
	}

	finder := discovery.NewFinder(discovery.NewBlueZRadio(adapter), cfg.SearchTimeout(), slog.Default())
	peripherals, err := finder.Find(ctx, targets)
	if err != nil {
		return err
	}

	sessions := make([]*poll.Session, 0, len(peripherals))
	for _, p := range peripherals {
		dev, ok := p.(*ble.Device)
		if !ok {
			return fmt.Errorf("unexpected peripheral type %T", p)
		}
		session, err := poll.NewSession(ctx, poll.Wrap(dev), slog.Default())
		if err != nil {
			return err
		}
		sessions = append(sessions, session)
	}

	switch mode {
	case modeSingle:
		return readOnce(ctx, sessions[0], printPretty)

	case modeOneline:
		return readOnce(ctx, sessions[0], func(ctx context.Context, s *poll.Session, r aranet.CurrentReading) {
			fmt.Println(r.Oneline(cfg.Fahrenheit))
		})

	case modeStreamingOneline:
		return runPollers(ctx, cfg, sessions, func(r aranet.CurrentReading) {
			fmt.Println(r.Oneline(cfg.Fahrenheit))
		})

	case modeService:
		m := metrics.New()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.MetricsListen)
			return m.Serve(gctx, cfg.MetricsListen)
		})
		g.Go(func() error {
			return runPollers(gctx, cfg, sessions, func(r aranet.CurrentReading) {
				m.Observe(r)
				fmt.Println(r.Oneline(cfg.Fahrenheit))
			})
		})
		return g.Wait()

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// readOnce performs a single read. Decode and read errors are fatal here:
// the user asked for exactly one reading and must see a clear failure.
func readOnce(ctx context.Context, session *poll.Session, show func(context.Context, *poll.Session, aranet.CurrentReading)) error {
	reading, err := session.Read(ctx)
	if err != nil {
		return err
	}
	show(ctx, session, reading)
	return nil
}

// printPretty renders the multi-line form plus whatever optional endpoints
// this firmware revision exposes.
func printPretty(ctx context.Context, session *poll.Session, r aranet.CurrentReading) {
	fmt.Println(r.String())

	endpoints := session.Endpoints()
	if interval, err := endpoints.ReadInterval(ctx); err == nil {
		fmt.Printf("Interval:    %s\n", interval)
	}
	if age, err := endpoints.ReadSecondsSinceUpdate(ctx); err == nil {
		fmt.Printf("Updated:     %s ago\n", age)
	}
}

// runPollers streams readings from every connected device. A failed tick on
// one device is logged and skipped inside the poller; only context
// cancellation ends the run.
func runPollers(ctx context.Context, cfg config.Config, sessions []*poll.Session, each func(aranet.CurrentReading)) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, session := range sessions {
		poller := poll.NewPoller(session, cfg.PollInterval(), slog.Default())
		g.Go(func() error {
			return poller.Run(gctx, each)
		})
	}
	return g.Wait()
}
