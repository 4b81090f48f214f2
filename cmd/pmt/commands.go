package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/j-veylop/pipeline-monitor-tui/internal/app"
	"github.com/j-veylop/pipeline-monitor-tui/internal/config"
	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
	"github.com/j-veylop/pipeline-monitor-tui/internal/metrics"
	"github.com/j-veylop/pipeline-monitor-tui/internal/models"
	"github.com/j-veylop/pipeline-monitor-tui/internal/reconcile"
	"github.com/j-veylop/pipeline-monitor-tui/internal/services"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/tabs/info"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/tabs/overview"
	"github.com/j-veylop/pipeline-monitor-tui/internal/ui/tabs/timeline"
	"github.com/j-veylop/pipeline-monitor-tui/internal/version"
)

// exitDegraded is returned by check when any source was unavailable.
const exitDegraded = 2

var (
	envFile   string
	exportDir string

	checkTarget     string
	checkSource     string
	checkLookback   int
	checkCompareAll bool
	checkCSV        bool

	catalogSource string

	rootCmd = &cobra.Command{
		Use:   "pmt",
		Short: "Reconcile hourly record counts between the warehouse and its sources",
		Long: `pmt compares how many records reached each warehouse target table with
how many its upstream relational store and search platform recorded.

Without a subcommand it opens the interactive dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDashboard,
	}

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Print one snapshot of a target table; exits 2 when a source is unavailable",
		RunE:  runCheck,
	}

	targetsCmd = &cobra.Command{
		Use:   "targets",
		Short: "List the warehouse target tables of a source system",
		RunE:  runTargets,
	}

	topicsCmd = &cobra.Command{
		Use:   "topics",
		Short: "List the topics of a source system",
		RunE:  runTopics,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "read settings from this .env file instead of searching for one")
	rootCmd.Flags().StringVar(&exportDir, "export-dir", ".", "directory CSV exports are written to")

	checkCmd.Flags().StringVarP(&checkTarget, "target", "t", "", "warehouse target table")
	checkCmd.Flags().StringVarP(&checkSource, "source", "s", "", "source system (default: first configured)")
	checkCmd.Flags().IntVarP(&checkLookback, "lookback", "l", 0, "lookback in hours, 1-24 (default: DEFAULT_LOOKBACK_HOURS)")
	checkCmd.Flags().BoolVarP(&checkCompareAll, "all", "a", false, "compare every configured source")
	checkCmd.Flags().BoolVar(&checkCSV, "csv", false, "print the reconciled timeline as CSV")
	_ = checkCmd.MarkFlagRequired("target")

	for _, cmd := range []*cobra.Command{targetsCmd, topicsCmd} {
		cmd.Flags().StringVarP(&catalogSource, "source", "s", "", "source system (default: first configured)")
	}

	rootCmd.AddCommand(checkCmd, targetsCmd, topicsCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if envFile != "" {
		cfg, err = config.Reload(envFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// runDashboard runs the interactive TUI until the user quits.
func runDashboard(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs go to a file; anything on stderr would corrupt the alternate screen.
	logCloser, err := logger.Setup(cfg.LogLevel, cfg.LogPath, nil)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	svcManager, err := services.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := svcManager.Close(); closeErr != nil {
			logger.Warn("error closing services", "error", closeErr)
		}
	}()

	model := app.NewModel(svcManager)
	model.SetExportDir(exportDir)

	state := model.GetState()
	model.SetTabs([]app.Tab{
		overview.New(state), // Tab 0: selection and counts
		timeline.New(state), // Tab 1: hourly reconciliation
		info.New(state),     // Tab 2: configuration and health
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	logger.Info("dashboard started", "version", version.GetVersion(), "systems", len(cfg.SourceSystems))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// headlessManager builds a manager for one-shot commands: no watcher, no
// background refresh, no desktop notifications and logs on stderr.
func headlessManager(stderr io.Writer) (*services.Manager, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if _, err := logger.Setup(cfg.LogLevel, "", stderr); err != nil {
		return nil, nil, err
	}
	cfg.NotificationsEnabled = false

	mgr, err := services.NewManager(cfg, services.WithoutWatcher(), services.WithoutBackgroundRefresh())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return mgr, cfg, nil
}

func defaultSystem(cfg *config.Config, name string) string {
	if name != "" || len(cfg.SourceSystems) == 0 {
		return name
	}
	return cfg.SourceSystems[0].Name
}

func runCheck(cmd *cobra.Command, _ []string) error {
	mgr, cfg, err := headlessManager(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer mgr.Close()

	lookback := checkLookback
	if lookback == 0 {
		lookback = cfg.DefaultLookbackHours
	}
	if err := models.ValidateLookback(lookback); err != nil {
		return err
	}

	sel := models.Selection{
		Mode:          models.ByTable,
		SourceSystem:  defaultSystem(cfg, checkSource),
		Target:        checkTarget,
		LookbackHours: lookback,
		CompareAll:    checkCompareAll,
	}

	snap, err := mgr.Refresh(cmd.Context(), sel, false)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if checkCSV {
		if snap.Timeline == nil {
			if snap.TimelineErr != nil {
				return fmt.Errorf("no timeline to export: %w", snap.TimelineErr)
			}
			return errors.New("no timeline to export")
		}
		if err := reconcile.WriteCSV(out, snap.Timeline); err != nil {
			return err
		}
	} else if err := writeReport(out, snap, cfg.DiscrepancyThreshold); err != nil {
		return err
	}

	if snap.Degraded() {
		return &exitError{code: exitDegraded}
	}
	return nil
}

func runTargets(cmd *cobra.Command, _ []string) error {
	return runCatalog(cmd, (*services.Manager).Targets)
}

func runTopics(cmd *cobra.Command, _ []string) error {
	return runCatalog(cmd, (*services.Manager).Topics)
}

func runCatalog(cmd *cobra.Command, list func(*services.Manager, context.Context, string) ([]string, error)) error {
	mgr, cfg, err := headlessManager(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer mgr.Close()

	names, err := list(mgr, cmd.Context(), defaultSystem(cfg, catalogSource))
	if err != nil {
		return err
	}
	return writeLines(cmd.OutOrStdout(), names)
}
