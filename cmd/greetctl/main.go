// Package main is greetctl, the operator CLI.
//
//	greetctl run [--date YYYY-MM-DD] [--dry-run]
//	greetctl preview [--date YYYY-MM-DD]
//	greetctl init-workbook greetbot.xlsx [--sample]
//
// Configuration comes from the environment (and .env), as for the other
// binaries. Output is YAML on stdout; logs are JSON on stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"greetbot/internal/app"
	"greetbot/internal/config"
	"greetbot/internal/roster"
	"greetbot/internal/run"
	"greetbot/internal/types"
)

// pipeline is the part of app.App the commands use.
type pipeline interface {
	Today() types.Date
	Run(ctx context.Context, date types.Date) run.Result
	Preview(ctx context.Context, date types.Date) ([]types.Candidate, error)
	Close()
}

// pipelineFactory builds a pipeline; dryRun disables sending and logging.
type pipelineFactory func(ctx context.Context, dryRun bool) (pipeline, error)

func main() {
	if err := newRootCmd(loadPipeline).Execute(); err != nil {
		os.Exit(1)
	}
}

func loadPipeline(ctx context.Context, dryRun bool) (pipeline, error) {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)
	return app.New(ctx, cfg, logger, app.Options{DryRun: dryRun})
}

func newRootCmd(factory pipelineFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "greetctl",
		Short:         "Run and inspect the greeting dispatcher.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(factory), newPreviewCmd(factory), newInitWorkbookCmd())
	return root
}

func newRunCmd(factory pipelineFactory) *cobra.Command {
	var (
		date   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send today's greetings.",
		Long: `Runs the birthday, anniversary, festival and custom cycles once. Recipients
already in the send log for the date are skipped. With --dry-run nothing is
sent and nothing is written to the send log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := factory(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			defer p.Close()

			d, err := resolveDate(p, date)
			if err != nil {
				return err
			}
			res := p.Run(cmd.Context(), d)
			if err := writeYAML(cmd.OutOrStdout(), newRunView(res, dryRun)); err != nil {
				return err
			}
			return res.Err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Reference date (YYYY-MM-DD); defaults to today in the dispatch timezone.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log messages instead of sending them and leave the send log untouched.")
	return cmd
}

func newPreviewCmd(factory pipelineFactory) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "List the greetings due on a date without sending.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := factory(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer p.Close()

			d, err := resolveDate(p, date)
			if err != nil {
				return err
			}
			cands, err := p.Preview(cmd.Context(), d)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), previewView{Date: d.String(), Candidates: cands})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Reference date (YYYY-MM-DD); defaults to today in the dispatch timezone.")
	return cmd
}

func newInitWorkbookCmd() *cobra.Command {
	var sample bool
	cmd := &cobra.Command{
		Use:   "init-workbook PATH",
		Short: "Create a local .xlsx workbook with the four tables.",
		Long: `Creates a workbook with roster, festivals, custom and send_log sheets, each
with a header row. Point WORKBOOK_PATH at it to run without Google Sheets.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			var rows map[string][][]string
			if sample {
				rows = sampleRows
			}
			if err := app.InitWorkbook(path, rows); err != nil {
				return fmt.Errorf("creating workbook: %w", err)
			}
			cmd.Printf("created %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sample, "sample", false, "Fill the tables with example rows.")
	return cmd
}

var sampleRows = map[string][][]string{
	roster.TableRoster: {
		{"E001", "Jane Doe", "jane@example.com", "1990-03-10", "2019-03-10"},
		{"E002", "Raj Kumar", "raj@example.com", "1985-07-01", "2020-01-15"},
	},
	roster.TableFestivals: {
		{"Holi", "2025-03-14"},
		{"Diwali", "2025-10-20"},
	},
	roster.TableCustom: {
		{"townhall-q1", "2025-03-28", "{name}, see you at the town hall", "Hi {name},\n\nThe quarterly town hall starts at 4 PM."},
	},
}

func resolveDate(p pipeline, flag string) (types.Date, error) {
	if flag == "" {
		return p.Today(), nil
	}
	d, err := types.ParseDate(flag)
	if err != nil {
		return types.Date{}, types.NewAppError(types.ErrCodeValidationInvalidDate, "invalid --date", err)
	}
	return d, nil
}

type runView struct {
	Date    string                          `yaml:"date"`
	RunID   string                          `yaml:"run_id,omitempty"`
	Status  run.Status                      `yaml:"status"`
	DryRun  bool                            `yaml:"dry_run,omitempty"`
	Error   string                          `yaml:"error,omitempty"`
	Reports map[string]types.DispatchReport `yaml:"reports,omitempty"`
}

func newRunView(res run.Result, dryRun bool) runView {
	v := runView{
		Date:   res.Date.String(),
		RunID:  res.RunID,
		Status: res.Status(),
		DryRun: dryRun,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	if len(res.Reports) > 0 {
		v.Reports = make(map[string]types.DispatchReport, len(res.Reports))
		for kind, rep := range res.Reports {
			v.Reports[string(kind)] = rep
		}
	}
	return v
}

type previewView struct {
	Date       string            `yaml:"date"`
	Candidates []types.Candidate `yaml:"candidates"`
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
