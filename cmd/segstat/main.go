package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"segstat/adapters/excel"
	"segstat/adapters/postgres"
	"segstat/app"
	"segstat/domain/core"
	"segstat/internal"
	"segstat/internal/config"
	"segstat/internal/container"
	"segstat/internal/errors"
)

var logger = internal.NewDefaultLogger()

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	var configPath string
	rootCmd := &cobra.Command{
		Use:          "segstat",
		Short:        "Background-normalize segmentation measurements and compare groups",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Pipeline YAML file")

	rootCmd.AddCommand(
		newNormalizeCmd(&configPath),
		newRunCmd(&configPath),
		newCompareCmd(&configPath),
		newResultsCmd(&configPath),
		newStitchCmd("stitch", "Concatenate corrected tables into one file", app.StitchedFile+".csv", false),
		newStitchCmd("dedupe", "Stitch corrected tables keeping one row per source file", app.AveragedFile+".csv", true),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pipelineFlags are the overrides shared by commands that read a pipeline config
type pipelineFlags struct {
	source  string
	dest    string
	pattern string
	format  string
	metric  string
	control string
	workers int
	noClip  bool
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "Directory containing measurement files")
	cmd.Flags().StringVar(&f.dest, "dest", "", "Output directory (defaults to --source)")
	cmd.Flags().StringVar(&f.pattern, "pattern", "", "Glob for input files (default *.csv)")
	cmd.Flags().StringVar(&f.format, "format", "", "Output format: csv or xlsx")
	cmd.Flags().StringVar(&f.metric, "metric", "", "Comparison metric: intensity_mean or intensity_max")
	cmd.Flags().StringVar(&f.control, "control", "", "Control group label")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Files normalized in parallel")
	cmd.Flags().BoolVar(&f.noClip, "no-clip", false, "Keep negative corrected intensities")
}

func (f *pipelineFlags) load(cmd *cobra.Command, path string) (config.Pipeline, error) {
	cfg, err := config.Read(path)
	if err != nil {
		return config.Pipeline{}, err
	}
	if f.source != "" {
		cfg.SourceDir = f.source
	}
	if f.dest != "" {
		cfg.DestDir = f.dest
	}
	if f.pattern != "" {
		cfg.Pattern = f.pattern
	}
	if f.format != "" {
		cfg.OutputFormat = f.format
	}
	if f.metric != "" {
		cfg.Metric = f.metric
	}
	if f.control != "" {
		cfg.ControlLabel = f.control
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if cmd.Flags().Changed("no-clip") {
		cfg.ClipNegative = !f.noClip
	}
	return cfg, nil
}

func newNormalizeCmd(configPath *string) *cobra.Command {
	var flags pipelineFlags
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Subtract the background row from every measurement file",
		Long: `Detect the background region (the row spanning a single z-slice) in each file,
subtract its intensities from every other region and write <name>_bg_sub.csv.

Example: segstat normalize --source ./measurements --dest ./corrected`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd, *configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			files, err := app.Discover(cfg.SourceDir, cfg.Pattern, app.OutputNames(cfg)...)
			if err != nil {
				return err
			}
			report := container.New(cfg, logger).Pipeline.NormalizeFiles(cmd.Context(), cfg, files)
			fmt.Printf("%d corrected, %d skipped, %d failed\n",
				report.Count(app.OutcomeCorrected), report.Count(app.OutcomeSkipped), report.Count(app.OutcomeFailed))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunCmd(configPath *string) *cobra.Command {
	var flags pipelineFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Normalize all files and compare the configured groups against the control",
		Long: `Run the full pipeline. Groups and their file patterns come from --config;
set DATABASE_URL (or database_url) to also store the summary rows.

Example: segstat run --config pipeline.yaml --source ./measurements`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd, *configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			c, err := newContainer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			report, err := c.Pipeline.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Printf("run %s: %d corrected, %d skipped, %d failed\n", report.RunID,
				report.Normalize.Count(app.OutcomeCorrected), report.Normalize.Count(app.OutcomeSkipped),
				report.Normalize.Count(app.OutcomeFailed))
			if report.Comparison != nil {
				fmt.Printf("summary: %s\ngroup stats: %s\n", report.Comparison.SummaryPath, report.Comparison.GroupStatsPath)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newCompareCmd(configPath *string) *cobra.Command {
	var flags pipelineFlags
	cmd := &cobra.Command{
		Use:   "compare [corrected-files...]",
		Short: "Compare already corrected or stitched files against the control group",
		Long: `Assign previously corrected tables to the groups from --config and run
Welch's t-test of every group against the control.

Example: segstat compare --config pipeline.yaml corrected/*_bg_sub.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd, *configPath)
			if err != nil {
				return err
			}
			if cfg.SourceDir == "" {
				cfg.SourceDir = filepath.Dir(args[0])
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			c, err := newContainer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			report, err := c.Pipeline.CompareFiles(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}
			fmt.Printf("summary: %s\ngroup stats: %s\n", report.SummaryPath, report.GroupStatsPath)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newStitchCmd(use, short, defaultOut string, dedupe bool) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   use + " [corrected-files...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.DefaultPipelineService(nil, logger).StitchFiles(args, out, dedupe)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", defaultOut, "Output file (.csv or .xlsx)")
	return cmd
}

func newResultsCmd(configPath *string) *cobra.Command {
	var out string
	var format string
	cmd := &cobra.Command{
		Use:   "results [run-id]",
		Short: "Export the summary and group statistics stored for a run",
		Long: `Read a run's comparison result from the database (DATABASE_URL or database_url)
and write it as summary and group statistics tables.

Example: segstat results 01926f1e-7c3a-7b4e-9f00-3c2a1d5e8b10 --out ./export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return errors.WithCode(errors.CodeInvalidInput, err)
			}
			cfg, err := config.Read(*configPath)
			if err != nil {
				return err
			}

			db, err := postgres.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := postgres.NewSummaryRepository(db)

			rows, err := repo.ListSummary(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return errors.InvalidInput(fmt.Sprintf("no stored result for run %s", runID))
			}
			stats, err := repo.ListGroupStats(cmd.Context(), runID)
			if err != nil {
				return err
			}

			ext := excel.Extension(format)
			writer := excel.NewWriter()
			summaryPath := filepath.Join(out, cfg.SummaryFile+ext)
			if err := writer.WriteSummary(summaryPath, rows); err != nil {
				return err
			}
			statsPath := filepath.Join(out, cfg.GroupStats+ext)
			if err := writer.WriteGroupStats(statsPath, stats); err != nil {
				return err
			}
			fmt.Printf("summary: %s\ngroup stats: %s\n", summaryPath, statsPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", ".", "Output directory")
	cmd.Flags().StringVar(&format, "format", config.FormatCSV, "Output format: csv or xlsx")
	return cmd
}

func newContainer(ctx context.Context, cfg config.Pipeline) (*container.Container, error) {
	c := container.New(cfg, logger)
	if err := c.InitWithDatabase(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
