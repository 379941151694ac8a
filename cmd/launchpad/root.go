package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jask/launchpad/internal/config"
	"github.com/jask/launchpad/internal/progress"
	"github.com/jask/launchpad/internal/shell"
	"github.com/jask/launchpad/internal/tui"
)

var (
	cfgFile  string
	logLevel string

	// populated by PersistentPreRunE
	cfg    config.Config
	logger *slog.Logger
	logOut io.Closer
)

var errStartupFailed = errors.New("startup failed")

var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Terminal desktop shell with a resilient startup core",
	Long: `launchpad brings up storage, cache, background tasks and themes
concurrently, shows startup progress and degrades instead of hanging
when a subsystem is slow or broken.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runShell,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		// --log-level wins over the config file
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}

		// the TUI owns the terminal, so it logs to a file
		if cmd == rootCmd {
			if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
				return fmt.Errorf("log dir: %w", err)
			}
			f, err := tea.LogToFile(cfg.Log.File, "launchpad")
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			logOut = f
			logger = newLogger(f, cfg.Log.Level)
		} else {
			logger = newLogger(cmd.ErrOrStderr(), cfg.Log.Level)
		}
		slog.SetDefault(logger)
		return nil
	}
	rootCmd.AddCommand(checkCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errStartupFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func stopApp(app *shell.App) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bootstrap.ShutdownGrace)
	defer cancel()
	app.Stop(ctx)
}

func closeLog() {
	if logOut != nil {
		_ = logOut.Close()
		logOut = nil
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	// runs last so shutdown is still logged
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	app, err := shell.New(shell.Options{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()})
	if err != nil {
		return err
	}
	defer stopApp(app)

	events, err := app.Progress(ctx)
	if err != nil {
		return err
	}
	p := tea.NewProgram(tui.New(app.Theme().Styles, events), tea.WithAltScreen(), tea.WithContext(ctx))
	onComplete := func(o progress.Outcome) {
		p.Send(tui.StylesMsg(app.Theme().Styles))
		p.Send(tui.OutcomeMsg(o))
	}
	if err := app.Start(ctx, onComplete); err != nil {
		return err
	}

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.ExitCode() != 0 {
		if out, ok := m.Outcome(); ok {
			fmt.Fprintln(cmd.ErrOrStderr(), out.String())
		}
		return errStartupFailed
	}
	return nil
}
