package main

import (
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-extent-service/internal/app"
	"github.com/couchcryptid/flood-extent-service/internal/config"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// globalFlags override the environment for a single invocation.
type globalFlags struct {
	DataSource  string
	Catalog     string
	SummaryRef  string
	ArchivePath string
	Format      string
	Verbose     bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "floodctl",
		Short: "Inspect flood-extent datasets and the view they produce",
		Long: `floodctl reads the same configuration as the floodview daemon (environment
variables, optionally from a .env file) and runs one-shot operations against it.

Quick start:
  floodctl fixtures --out ./data   # write synthetic datasets
  floodctl discover                # probe the catalog and print the index
  floodctl render --year 2020      # print the commands for a selection`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.DataSource, "data-source", "", "dataset directory or http(s) base URL (overrides DATA_SOURCE)")
	pf.StringVar(&flags.Catalog, "catalog", "", "catalog file (overrides CATALOG_FILE)")
	pf.StringVar(&flags.SummaryRef, "summary", "", "summary table reference (overrides SUMMARY_REF)")
	pf.StringVar(&flags.ArchivePath, "archive", "", "archive database path (overrides ARCHIVE_PATH)")
	pf.StringVarP(&flags.Format, "format", "o", formatTable, "output format: table or json")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "log discovery progress to stderr")

	root.AddCommand(
		newDiscoverCmd(flags),
		newValidateCmd(flags),
		newSummaryCmd(flags),
		newRenderCmd(flags),
		newFixturesCmd(flags),
		newArchiveCmd(flags),
	)
	return root
}

// loadConfig resolves configuration and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.DataSource != "" {
		cfg.DataSource = f.DataSource
	}
	if f.Catalog != "" {
		cfg.CatalogFile = f.Catalog
	}
	if f.SummaryRef != "" {
		cfg.SummaryRef = f.SummaryRef
	}
	if f.ArchivePath != "" {
		cfg.ArchivePath = f.ArchivePath
	}
	if f.Format != formatTable && f.Format != formatJSON {
		return nil, fmt.Errorf("unknown format %q: want table or json", f.Format)
	}
	return cfg, nil
}

// buildDeps loads configuration and constructs the shared components.
// Logs go to stderr so stdout stays machine-readable.
func (f *globalFlags) buildDeps(cmd *cobra.Command) (*app.Deps, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if f.Verbose {
		level = "debug"
	}
	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), level, "text")

	return app.New(cfg, logger, observability.NewUnregisteredMetrics())
}

// printSimpleTable renders a bordered, left-aligned table.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}
