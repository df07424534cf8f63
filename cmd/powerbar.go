package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"tinygo.org/x/bluetooth"

	"github.com/lockevod/karoo-powerbar/internal/bt"
	"github.com/lockevod/karoo-powerbar/internal/config"
	"github.com/lockevod/karoo-powerbar/internal/headunit"
	"github.com/lockevod/karoo-powerbar/internal/logging"
	"github.com/lockevod/karoo-powerbar/internal/metrics"
	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
	"github.com/lockevod/karoo-powerbar/internal/ui"
)

const (
	mockNotifyInterval = time.Second
	shutdownTimeout    = 5 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	must("load config", err)

	logSink := ui.NewLogSink(1000)
	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, logSink)
	must("create logger", err)

	err = run(cfg, logger, logSink)
	if err != nil {
		logger.Error().Err(err).Msg("exiting")
		fmt.Fprintln(os.Stderr, err)
	}
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zerolog.Logger, logSink *ui.LogSink) error {
	logger.Info().Str("config_file", cfg.ConfigFile).Str("source", cfg.Source).Msg("starting powerbar")

	kind, err := telemetry.ParseKind(cfg.Source)
	if err != nil {
		return err
	}
	location, err := ui.ParseLocation(cfg.Location)
	if err != nil {
		return err
	}

	manager := newBTManager(cfg, logger)
	defer manager.Shutdown()
	if err := manager.Enable(); err != nil {
		return fmt.Errorf("could not enable bluetooth: %w", err)
	}

	store, err := profile.NewSQLiteStore(cfg.Profile.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	seed := profile.Derive(cfg.Profile.FTP, cfg.Profile.RestingHR, cfg.Profile.MaxHR)
	initial, err := profile.LoadOrSeed(context.Background(), store, seed, cfg.Profile.Explicit)
	if err != nil {
		return err
	}
	logger.Info().
		Bool("from_settings", cfg.Profile.Explicit).
		Int("resting_hr", initial.RestingHR).
		Int("max_hr", initial.MaxHR).
		Msg("rider profile loaded")
	feed := profile.NewFeed(logger, store, initial, cfg.Profile.PollInterval)
	defer feed.Shutdown()

	connector := headunit.NewConnector(headunit.ConnectorArgs{
		Manager:    manager,
		Profiles:   feed,
		Address:    cfg.Device.Address,
		StaleAfter: cfg.Device.StaleAfter,
		Logger:     logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)
	if cfg.Metrics.Addr != "" {
		server := metrics.NewServer(cfg.Metrics.Addr, registry, logger)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("metrics server did not stop cleanly")
			}
		}()
	}

	app := tview.NewApplication()
	bar := ui.NewProgressBar()
	executor := ui.NewExecutor(logger, app)
	defer executor.Shutdown()

	model := ui.NewModel(logger, logSink.Lines(), kind)
	defer model.Shutdown()

	// the view's content is needed before the layout, and the layout before
	// the overlay, so the overlay reaches the surface through a late binding
	surface := &lateSurface{}
	overlay := powerbar.NewOverlay(powerbar.OverlayArgs{
		Connector:  connector,
		Target:     bar,
		UI:         executor,
		Surface:    surface,
		Logger:     logger,
		Observer:   powerbar.Observers(model, recorder),
		ResetOnGap: cfg.ResetOnGap,
	})
	controller := ui.NewController(model, overlay, logger)
	defer controller.Shutdown()

	view := ui.NewCursesView(ui.CursesViewArgs{
		App:        app,
		Model:      model,
		Controller: controller,
		UI:         executor,
		Logger:     logger,
	})
	defer view.Shutdown()

	layout := ui.NewLayout(view.Content(), bar, location)
	surface.layout = layout

	controller.Open()
	return view.Run(layout.Root())
}

func newBTManager(cfg *config.Config, logger *zerolog.Logger) bt.BTManagerInterface {
	if cfg.Mock {
		mockCfg := bt.DefaultMockConfig()
		if cfg.Device.Address != "" {
			mockCfg.Address = cfg.Device.Address
		}
		return bt.NewMockBTManager(logger, bt.NewMockBTDevice(logger, mockCfg), mockNotifyInterval)
	}
	return bt.NewBTManager(bluetooth.DefaultAdapter, logger, cfg.Device.ScanTimeout)
}

// lateSurface forwards to the layout once it exists. Both methods run on the
// UI context, which only starts after the layout is set.
type lateSurface struct {
	layout *ui.Layout
}

func (s *lateSurface) Attach() error { return s.layout.Attach() }
func (s *lateSurface) Detach() error { return s.layout.Detach() }

func must(action string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to %s: %v\n", action, err)
		os.Exit(1)
	}
}
