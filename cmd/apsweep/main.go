package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpataki/apsweep/internal/config"
	"github.com/mpataki/apsweep/internal/logging"
	"github.com/mpataki/apsweep/internal/orchestrator"
	"github.com/mpataki/apsweep/internal/report"
	"github.com/mpataki/apsweep/internal/schedule"
	"github.com/mpataki/apsweep/internal/storage"
	"github.com/mpataki/apsweep/internal/tool"
	"github.com/mpataki/apsweep/internal/tui"
	"github.com/mpataki/apsweep/internal/workspace"
)

var (
	verbose bool
	logger  *zap.Logger
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apsweep <target>",
		Short: "Run the auto-parallelizer over a fixed parameter schedule",
		Long: `apsweep invokes the auto-parallelization tool once per (mode, concurrency)
pair of its schedule, renames each generated file so runs do not overwrite
each other, and appends all tool output to a single log file.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runSweep,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logger != nil {
				return nil
			}
			var err error
			logger, err = logging.New(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newCleanCommand())
	rootCmd.AddCommand(newScheduleCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newBrowseCommand())
	return rootCmd
}

// env bundles what every command needs.
type env struct {
	cfg   *config.Config
	store *storage.Storage
	ws    *workspace.Workspace
	orch  *orchestrator.Orchestrator
}

func (e *env) Close() error {
	return e.store.Close()
}

func setup() (*env, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ws := workspace.New(cfg.WorkDir, cfg.ArtifactPrefix, cfg.ArtifactExt, cfg.LogFile)
	runner := &tool.Tool{
		Build:       cfg.Build,
		BuildTarget: cfg.BuildTarget,
		Dir:         cfg.WorkDir,
		RootEnv:     cfg.ToolRootEnv,
		Root:        cfg.ToolRoot,
		Debug:       cfg.Debug,
	}

	return &env{
		cfg:   cfg,
		store: store,
		ws:    ws,
		orch:  orchestrator.New(store, ws, runner, logger),
	}, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	// The tool runs inside the working directory, which need not be the shell's.
	target, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	specs, err := schedule.Load(e.cfg.ScheduleScript)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := e.orch.Sweep(ctx, target, specs)
	if summary != nil {
		report.Summary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	return nil
}

func newCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete generated files and the log from the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			cleanup, err := e.orch.Prepare()
			if cleanup != nil {
				report.Cleanup(cmd.OutOrStdout(), cleanup, e.ws.LogPath())
			}
			return err
		},
	}
}

func newScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule [target]",
		Short: "Show the effective schedule and the files it would produce",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			specs, err := schedule.Load(cfg.ScheduleScript)
			if err != nil {
				return err
			}

			target := ""
			if len(args) == 1 {
				if target, err = filepath.Abs(args[0]); err != nil {
					return fmt.Errorf("failed to resolve target: %w", err)
				}
			}
			ws := workspace.New(cfg.WorkDir, cfg.ArtifactPrefix, cfg.ArtifactExt, cfg.LogFile)
			report.Schedule(cmd.OutOrStdout(), specs, ws, target)
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			sweeps, err := e.orch.ListSweeps(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sweeps) == 0 {
				fmt.Fprintln(out, "No sweeps found.")
				return nil
			}
			for _, sweep := range sweeps {
				fmt.Fprintln(out, report.SweepLine(sweep))
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of sweeps to show")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <sweep-id>",
		Short: "Show a sweep and its runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sweep ID: %w", err)
			}

			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			sweep, err := e.orch.GetSweep(id)
			if err != nil {
				return fmt.Errorf("failed to get sweep: %w", err)
			}
			execs, err := e.orch.GetExecutionsForSweep(id)
			if err != nil {
				return err
			}

			report.SweepDetail(cmd.OutOrStdout(), sweep, execs)
			return nil
		},
	}
}

func newBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse sweep history interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.Close()

			p := tea.NewProgram(tui.NewApp(e.orch), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}
