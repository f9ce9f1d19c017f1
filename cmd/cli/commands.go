package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"energy-mca/internal/analysis"
	"energy-mca/internal/api/handlers"
	"energy-mca/internal/config"
	"energy-mca/internal/mca"
	"energy-mca/internal/model"
	"energy-mca/internal/results"
	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	settingsPath string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "mca",
		Short:        "Clear multi-sector energy markets over a series of years",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.settingsPath, "settings", "", "YAML settings file (default $MCA_SETTINGS)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override the settings log level")

	root.AddCommand(newRunCmd(g), newValidateCmd(g), newTimeslicesCmd())
	return root
}

// loadSettings reads the settings layers and initializes the global logger.
func (g *globalFlags) loadSettings(stderr io.Writer) (*config.Settings, error) {
	s, err := config.LoadSettings(g.settingsPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		s.LogLevel = g.logLevel
	}
	if err := logger.Init(logger.Options{Output: stderr, Format: s.LogFormat, Level: s.LogLevel}); err != nil {
		return nil, err
	}
	return s, nil
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		modelPath string
		outDir    string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a model and write the result tables as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.loadSettings(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runModel(cmd.Context(), cmd.OutOrStdout(), s.Settings, modelPath, outDir, asJSON)
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "Model definition (YAML)")
	cmd.Flags().StringVar(&outDir, "out", "results", "Directory for the CSV outputs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runModel(ctx context.Context, out io.Writer, settings mca.Settings, modelPath, outDir string, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(modelPath)
	if err != nil {
		return err
	}
	m, err := cfg.Build()
	if err != nil {
		return err
	}
	engine, err := mca.New(settings, mca.WithLogger(logger.Named("mca")), mca.WithMetrics(metrics.Default()))
	if err != nil {
		return err
	}

	run, runErr := engine.Run(ctx, m)
	if runErr != nil && (run == nil || !errors.Is(runErr, model.ErrNonConvergence)) {
		return runErr
	}

	tables := results.FromRun(run, m.Timeslices, m.Registry)
	if err := results.WriteCSV(outDir, tables); err != nil {
		return err
	}
	summary := analysis.Summarize(run, tables, m.Timeslices.Weights())
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary, outDir)
	}
	return runErr
}

func printSummary(out io.Writer, s analysis.RunSummary, outDir string) {
	fmt.Fprintf(out, "model %s  run %s  converged=%t  (%d ms)\n", s.Model, s.ID, s.Converged, s.DurationMs)
	fmt.Fprintf(out, "sector order: %v\n\n", s.Order)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "YEAR\tSTATUS\tROUNDS\tRESIDUAL\tUNMET\tRATIONED\tADDED\tRETIRED")
	for _, y := range s.Years {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.2e\t%.3f\t%d\t%.3f\t%.3f\n",
			y.Year, y.Status, y.Rounds, y.Residual, y.Unmet, y.Rationed, y.Added, y.Retired)
	}
	_ = w.Flush()

	if len(s.Prices) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "YEAR\tCOMMODITY\tMEAN\tMIN\tMAX")
		for _, p := range s.Prices {
			fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%.4f\n", p.Year, p.Commodity, p.Mean, p.Min, p.Max)
		}
		_ = w.Flush()
	}
	fmt.Fprintf(out, "\nresults written to %s\n", outDir)
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var modelPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a model definition without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.loadSettings(cmd.ErrOrStderr()); err != nil {
				return err
			}
			cfg, err := config.Load(modelPath)
			if err != nil {
				return err
			}
			m, err := cfg.Build()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d years, %d timeslices, %d technologies\n",
				m.Name, len(m.Years), m.Timeslices.Len(), len(m.Registry.All()))
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "Model definition (YAML)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newTimeslicesCmd() *cobra.Command {
	var (
		modelPath string
		drop      []string
	)
	cmd := &cobra.Command{
		Use:   "timeslices",
		Short: "Print the flattened timeslices of a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(modelPath)
			if err != nil {
				return err
			}
			if len(drop) > 0 {
				cfg.Timeslices.DropLevels = drop
			}
			m, err := cfg.Build()
			if err != nil {
				return err
			}
			resp := handlers.TimesliceResponse(m.Timeslices)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "INDEX\tNAME\tWEIGHT\n")
			for _, ts := range resp.Timeslices {
				fmt.Fprintf(w, "%d\t%s\t%.6f\n", ts.Index, ts.Name, ts.Weight)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "Model definition (YAML)")
	cmd.Flags().StringSliceVar(&drop, "drop", nil, "Timeslice levels to aggregate away")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
