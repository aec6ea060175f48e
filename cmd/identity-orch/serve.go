package main

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hochfrequenz/identity-orchestrator/internal/batch"
	"github.com/hochfrequenz/identity-orchestrator/internal/config"
	"github.com/hochfrequenz/identity-orchestrator/internal/observer"
	"github.com/hochfrequenz/identity-orchestrator/tui"
	"github.com/hochfrequenz/identity-orchestrator/web/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	servePort     int
	scheduleEvery time.Duration
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web API, the config watcher and the recurring schedules",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	serveCmd.Flags().DurationVar(&scheduleEvery, "schedule-interval", time.Minute, "how often schedules are checked")
	rootCmd.AddCommand(serveCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch TUI dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	watcher, err := observer.NewConfigWatcher(a.files, func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("ignoring invalid configuration", zap.String("path", a.files.Path), zap.Error(err))
			return
		}
		a.orch.ReloadConfig(cfg)
	}, logger)
	if err != nil {
		return fmt.Errorf("watching config: %w", err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	if len(a.cfg.Schedules) > 0 {
		sched, err := batch.NewScheduler(a.cfg.Schedules, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Start(ctx, scheduleEvery, a.orch.RunScheduled)
		}()
		logger.Info("schedules armed", zap.Strings("schedules", sched.ListSchedules()))
	}

	port := servePort
	if port == 0 {
		port = a.cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", a.cfg.Web.Host, port)
	server := api.NewServer(a.orch, addr, a.orch.Metrics().Handler(), logger)

	fmt.Fprintf(cmd.OutOrStdout(), "Starting web API at http://%s\n", addr)
	err = server.Start(ctx)
	cancel()
	return err
}

func runTUI(cmd *cobra.Command, args []string) error {
	// The dashboard owns the terminal; keep log lines out of it.
	logger = zap.NewNop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.NewModel(tui.ModelConfig{
		Controller: a.orch,
		BatchSize:  a.cfg.Run.BatchSize,
		Context:    cmd.Context(),
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
