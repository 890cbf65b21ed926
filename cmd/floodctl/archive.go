package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-extent-service/internal/archive"
)

func newArchiveCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Read the discovery run archive",
		Long: `Commands for inspecting discovery runs recorded by floodview when
ARCHIVE_PATH is set. Use 'floodctl archive record' to add a run by hand.`,
	}
	cmd.AddCommand(newArchiveListCmd(flags), newArchiveShowCmd(flags), newArchiveRecordCmd(flags))
	return cmd
}

func openArchive(flags *globalFlags) (*archive.Store, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.ArchivePath == "" {
		return nil, errors.New("no archive configured: set ARCHIVE_PATH or --archive")
	}
	return archive.Open(cfg.ArchivePath)
}

func newArchiveListCmd(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived discovery runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openArchive(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(limit)
			if err != nil {
				return fmt.Errorf("reading archive: %w", err)
			}

			out := cmd.OutOrStdout()
			if flags.Format == formatJSON {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No discovery runs archived.")
				return nil
			}
			printSimpleTable(out, []string{"RUN", "STARTED AT", "DURATION", "CANDIDATES", "DATASETS", "EXCLUDED"}, func(add func(...string)) {
				for _, r := range runs {
					add(
						r.ID,
						r.StartedAt.Format("2006-01-02 15:04:05"),
						r.Duration.String(),
						strconv.Itoa(r.Candidates),
						strconv.Itoa(len(r.Datasets)),
						strconv.Itoa(len(r.Excluded)),
					)
				}
			})
			fmt.Fprintf(out, "\n%d runs  •  %s\n", len(runs), store.Path())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	return cmd
}

func newArchiveShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <RUN_ID>",
		Short: "Print the datasets of one archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openArchive(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.Format == formatJSON {
				return writeJSON(out, run)
			}
			printSimpleTable(out, []string{"ID", "LABEL", "AREA KM²", "% REGION", "POLYGONS", "SEVERITY"}, func(add func(...string)) {
				for _, d := range run.Datasets {
					add(
						d.Key.String(),
						d.Label,
						strconv.FormatFloat(d.Metrics.AreaKm2, 'f', 2, 64),
						strconv.FormatFloat(d.Metrics.Percentage, 'f', 2, 64),
						strconv.Itoa(d.Metrics.PolygonCount),
						d.Severity.String(),
					)
				}
			})
			if len(run.Excluded) > 0 {
				fmt.Fprintln(out)
				printExclusions(out, run.Excluded)
			}
			return nil
		},
	}
}

func newArchiveRecordCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Run discovery once and archive the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := flags.buildDeps(cmd)
			if err != nil {
				return err
			}
			store, err := deps.OpenArchive()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no archive configured: set ARCHIVE_PATH or --archive")
			}
			defer store.Close()

			res := deps.Discovery.Run(cmd.Context(), deps.Candidates)
			run, err := archive.FromResult(res)
			if err != nil {
				return err
			}
			if err := store.Save(run); err != nil {
				return fmt.Errorf("archiving run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived run %s: %d of %d candidates indexed.\n", run.ID, len(run.Datasets), run.Candidates)
			return nil
		},
	}
}
