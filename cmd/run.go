package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goclockin/attendance"
	"goclockin/events"
	"goclockin/internal/timeutil"
	"goclockin/web"
)

var (
	runNoWeb        bool
	runNoStartup    bool
	runOpenBrowser  bool
	runShutdownWait time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the clock-in daemon",
	Long: `Run the daemon that turns session lifecycle events into Factorial clock actions.

Events:
- startup: clock in once after events.login_delay
- sleep/wake: detected from gaps in a wall-clock heartbeat, or sent via SIGUSR2/SIGUSR1
  or "goclockin notify sleep|wake"
- shutdown: SIGINT/SIGTERM clocks out when events.clock_out_on_shutdown is set

Automatic actions only run on working days. The local web UI shows the status and
accepts manual clock-in/clock-out and credential updates.`,
	Example: `
  # Run with defaults from ~/.goclockin.yaml
  goclockin run

  # Debug logging to a file, no web UI
  goclockin run --log-level debug --log-file ~/.goclockin/daemon.log --no-web
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return runDaemon(a)
	},
}

func runDaemon(a *app) error {
	cfg := a.cfg
	logger := a.logger
	clock := timeutil.Real()

	dispatcher, err := events.NewDispatcher(events.Config{
		Handler:       a.service,
		Clock:         clock,
		Logger:        logger.With("component", "dispatcher"),
		RetryAttempts: cfg.Dispatcher.RetryAttempts,
		RetryDelay:    cfg.Dispatcher.RetryDelay,
		OnOutcome: func(ev events.Event, outcome attendance.Outcome) {
			logger.Info("event handled",
				"event", string(ev.Kind),
				"origin", ev.Origin,
				"result", outcome.Result(),
				"message", outcome.Message(),
			)
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- dispatcher.Run(ctx)
	}()

	sourceCtx, stopSources := context.WithCancel(ctx)
	defer stopSources()

	submit := func(ev events.Event) {
		if err := dispatcher.Submit(ev); err != nil {
			logger.Warn("event dropped", "event", string(ev.Kind), "error", err)
		}
	}

	sources := []events.Source{
		&events.HeartbeatSource{Clock: clock, Interval: cfg.Events.Heartbeat, Gap: cfg.Events.SleepGap},
		&events.SignalSource{Clock: clock},
	}
	if !runNoStartup {
		sources = append([]events.Source{&events.StartupSource{Clock: clock, Delay: cfg.Events.LoginDelay}}, sources...)
	}
	if failed := events.StartSources(sourceCtx, sources, submit, logger.With("component", "events")); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: event sources unavailable (%v); manual actions only for those events.\n", failed)
	}

	if runNoStartup {
		go func() {
			_ = dispatcher.Do(sourceCtx, func(ctx context.Context) { a.service.RefreshStatus(ctx) })
		}()
	}
	dispatcher.Every(sourceCtx, cfg.Status.RefreshInterval, func(ctx context.Context) {
		a.service.RefreshStatus(ctx)
	})

	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.Web.Enabled && !runNoWeb {
		frontend := events.NewFrontend(dispatcher, a.service, clock)
		server = &http.Server{
			Addr: cfg.Web.Listen,
			Handler: web.NewServer(web.Options{
				Backend: frontend,
				Journal: a.store,
				Config:  *cfg,
				Clock:   clock,
				Logger:  logger.With("component", "web"),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		listener, err := net.Listen("tcp", cfg.Web.Listen)
		if err != nil {
			cancel()
			<-runDone
			return fmt.Errorf("listen on %s: %w", cfg.Web.Listen, err)
		}
		go func() {
			serverErr <- server.Serve(listener)
		}()

		listenURL := "http://" + cfg.Web.Listen
		fmt.Printf("Listening on %s\n", listenURL)
		if runOpenBrowser {
			if openErr := openURLInBrowser(listenURL); openErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to open browser: %v\n", openErr)
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info("daemon started", "account", a.service.Email(), "web", server != nil)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web server failed", "error", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-runDone:
		return err
	}

	stopSources()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = server.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if cfg.Events.ClockOutOnShutdown {
		if err := dispatcher.Submit(events.Event{Kind: events.KindLogout, At: clock.Now(), Origin: events.OriginShutdown}); err != nil {
			logger.Warn("could not queue shutdown clock-out", "error", err)
		}
	}
	dispatcher.Close()

	select {
	case err := <-runDone:
		return err
	case <-time.After(runShutdownWait):
		cancel()
		<-runDone
		return fmt.Errorf("shutdown timed out after %s with events still queued", runShutdownWait)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runNoWeb, "no-web", false, "Do not start the local web UI")
	runCmd.Flags().BoolVar(&runNoStartup, "no-startup", false, "Do not clock in on daemon start")
	runCmd.Flags().BoolVar(&runOpenBrowser, "open", false, "Open the web UI in the default browser")
	runCmd.Flags().DurationVar(&runShutdownWait, "shutdown-timeout", 20*time.Second, "Maximum time to wait for the shutdown clock-out")
}

func openURLInBrowser(rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	return cmd.Start()
}
