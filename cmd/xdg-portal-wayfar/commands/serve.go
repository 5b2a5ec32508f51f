package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/config"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/debugserver"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/gpu"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/lifecycle"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/logger"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/media"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/portal"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/reactor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/render"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/selection"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/session"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/timer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal backend daemon",
	Long: `Connect to the Wayland compositor and PipeWire, claim the ScreenCast
backend bus name, and serve capture requests until terminated.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configMgr.ApplyOverrides(viper.GetString("log_level"), viper.GetString("debug_http_addr"))
	if viper.IsSet("log_pretty") && viper.GetBool("log_pretty") {
		configMgr.Get().Log.Pretty = true
	}

	cfg := configMgr.Get()
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.WithComponent("serve")

	lc := lifecycle.New()
	var teardown []func()

	log.Info().Msg("connecting to wayland compositor")
	display, err := compositor.Connect()
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to wayland compositor")
		os.Exit(lifecycle.ExitStartupFailure)
	}
	teardown = append(teardown, display.Close)

	log.Info().Msg("connecting to pipewire")
	mgr, err := media.New()
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to pipewire")
		os.Exit(lifecycle.ExitStartupFailure)
	}
	teardown = append(teardown, mgr.Close)

	dev, err := gpu.Open("")
	if err != nil {
		log.Warn().Err(err).Msg("no DRM render node available, transform-requiring captures will fail")
	} else {
		teardown = append(teardown, dev.Close)
	}

	var renderer *render.Renderer
	if dev != nil {
		renderer, err = render.New(dev)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize GPU renderer, transform-requiring captures will fail")
		}
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to session bus")
		os.Exit(lifecycle.ExitStartupFailure)
	}
	teardown = append(teardown, func() { conn.Close() })

	provider := selection.New(cfg, display.Toplevels(), display.Outputs(), func(msg string) {
		log.Warn().Str("diagnostic", msg).Msg("picker diagnostic")
	})

	sessions := session.NewManager()
	timers := timer.New()

	driver := &session.Driver{
		Display:  display,
		GPU:      dev,
		Renderer: renderer,
		Media:    mgr,
		ScheduleNext: func(s *session.Session, delay time.Duration) {
			timers.Schedule(delay, func() {
				if lc.Terminating() {
					return
				}
				if err := driver.StartFrameCopy(s); err != nil {
					log.Debug().Err(err).Str("session", s.SessionPath).Msg("scheduled frame copy failed")
				}
			})
		},
	}
	driver.UpdateStreamParams = func(s *session.Session, offers []media.VideoFormatOffer) {
		if st := s.Stream(); st != nil {
			if err := st.UpdateParams(offers); err != nil {
				log.Warn().Err(err).Str("session", s.SessionPath).Msg("failed to renegotiate stream format")
			}
		}
	}

	loop, err := reactor.New(display, mgr, timers, func(err error) {
		log.Error().Err(err).Msg("event reactor failed fatally")
		lc.Shutdown("reactor fatal error")
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create event reactor")
		os.Exit(lifecycle.ExitStartupFailure)
	}
	loop.Tick = driver.PumpPending
	teardown = append(teardown, loop.Stop)

	p := portal.New(conn, sessions, driver, provider, display.Toplevels(), display.Outputs(), loop.Call, cfg, display.HasToplevelCapabilities())
	if err := p.Serve(); err != nil {
		log.Error().Err(err).Msg("failed to publish portal interface")
		os.Exit(lifecycle.ExitStartupFailure)
	}
	teardown = append(teardown, p.Close)

	var dbg *debugserver.Server
	if cfg.Debug.HTTPAddr != "" {
		// Nothing calls dbg.Update or dbg.PublishEvent, so every route
		// serves the server's initial empty snapshot.
		dbg = debugserver.New(cfg.Debug.HTTPAddr)
		dbg.Start()
		teardown = append(teardown, dbg.Stop)
	}

	// Cleanup runs in reverse acquisition order: debug server, portal,
	// reactor, then the bus, GPU, PipeWire and Wayland connections.
	for i := len(teardown) - 1; i >= 0; i-- {
		lc.OnShutdown(teardown[i])
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received termination signal")
		lc.Shutdown("signal")
	}()

	log.Info().Msg("portal ready, entering event loop")
	loop.Run()

	log.Info().Msg("event loop exited")
	return nil
}
