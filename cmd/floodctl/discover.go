package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-extent-service/internal/discovery"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

type datasetRow struct {
	Key       domain.Key      `json:"key"`
	Label     string          `json:"label,omitempty"`
	SourceRef string          `json:"source_ref"`
	Metrics   domain.Metrics  `json:"metrics"`
	Severity  domain.Severity `json:"severity"`
}

type discoverOutput struct {
	Candidates int                   `json:"candidates"`
	Datasets   []datasetRow          `json:"datasets"`
	Excluded   []discovery.Exclusion `json:"excluded"`
	DurationMS int64                 `json:"duration_ms"`
}

func newDiscoverCmd(flags *globalFlags) *cobra.Command {
	var showExcluded bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Probe every catalog entry and print the availability index",
		Example: `  floodctl discover
  floodctl discover --data-source https://example.org/floods --excluded
  floodctl discover -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := flags.buildDeps(cmd)
			if err != nil {
				return err
			}

			res := deps.Discovery.Run(cmd.Context(), deps.Candidates)
			out := cmd.OutOrStdout()

			if flags.Format == formatJSON {
				return writeJSON(out, toDiscoverOutput(res))
			}

			if res.Index.Empty() {
				fmt.Fprintf(out, "No datasets found among %d candidates in %s.\n", res.Candidates, deps.Config.DataSource)
			} else {
				printDatasets(out, res.Index)
				fmt.Fprintf(out, "\n%d of %d candidates indexed in %s\n", res.Index.Len(), res.Candidates, res.Duration.Round(time.Millisecond))
			}
			if showExcluded && len(res.Excluded) > 0 {
				fmt.Fprintln(out)
				printExclusions(out, res.Excluded)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showExcluded, "excluded", false, "also list candidates that were left out and why")
	return cmd
}

func toDiscoverOutput(res discovery.Result) discoverOutput {
	out := discoverOutput{
		Candidates: res.Candidates,
		Datasets:   make([]datasetRow, 0, res.Index.Len()),
		Excluded:   res.Excluded,
		DurationMS: res.Duration.Milliseconds(),
	}
	if out.Excluded == nil {
		out.Excluded = []discovery.Exclusion{}
	}
	for _, rec := range res.Index.Records() {
		out.Datasets = append(out.Datasets, datasetRow{
			Key:       rec.Key(),
			Label:     rec.Descriptor.Label,
			SourceRef: rec.SourceRef,
			Metrics:   rec.Metrics,
			Severity:  rec.Severity,
		})
	}
	return out
}

func printDatasets(w io.Writer, idx domain.Index) {
	printSimpleTable(w, []string{"ID", "LABEL", "AREA KM²", "% REGION", "VOLUME M M³", "POLYGONS", "SEVERITY"}, func(add func(...string)) {
		for _, rec := range idx.Records() {
			m := rec.Metrics
			add(
				rec.Descriptor.ID(),
				rec.Descriptor.Label,
				strconv.FormatFloat(m.AreaKm2, 'f', 2, 64),
				strconv.FormatFloat(m.Percentage, 'f', 2, 64),
				strconv.FormatFloat(m.VolumeMegaM3, 'f', 2, 64),
				strconv.Itoa(m.PolygonCount),
				rec.Severity.String(),
			)
		}
	})
}

func printExclusions(w io.Writer, excluded []discovery.Exclusion) {
	printSimpleTable(w, []string{"ID", "SOURCE", "REASON"}, func(add func(...string)) {
		for _, e := range excluded {
			add(e.Key.String(), e.SourceRef, e.Reason)
		}
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
