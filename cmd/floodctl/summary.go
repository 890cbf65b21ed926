package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-extent-service/internal/summary"
)

func newSummaryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the per-year statistics table",
		Example: `  floodctl summary --summary resumen_estadisticas.csv
  floodctl summary -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := flags.buildDeps(cmd)
			if err != nil {
				return err
			}
			ref := deps.Config.SummaryRef
			if ref == "" {
				return errors.New("no summary table configured: set SUMMARY_REF or --summary")
			}

			table := deps.Summaries.Load(cmd.Context(), ref)
			out := cmd.OutOrStdout()

			if flags.Format == formatJSON {
				rows := make([]map[string]any, 0, len(table))
				for _, year := range table.Years() {
					rows = append(rows, summaryJSON(table[year]))
				}
				return writeJSON(out, rows)
			}

			if len(table) == 0 {
				fmt.Fprintf(out, "Summary table %s has no rows.\n", ref)
				return nil
			}
			printSimpleTable(out, []string{"YEAR", "MU", "SIGMA", "K", "THRESHOLD", "DIFF MIN", "DIFF MAX", "IMGS BEFORE", "IMGS AFTER"}, func(add func(...string)) {
				for _, year := range table.Years() {
					r := table[year]
					add(
						strconv.Itoa(year),
						summary.Format(r.Mu, 2),
						summary.Format(r.Sigma, 2),
						summary.Format(r.KValue, 2),
						summary.Format(r.Threshold, 2),
						summary.Format(r.DiffMin, 2),
						summary.Format(r.DiffMax, 2),
						summary.Format(r.ImagesBefore, 0),
						summary.Format(r.ImagesAfter, 0),
					)
				}
			})
			return nil
		},
	}
}

// summaryJSON writes missing values as null.
func summaryJSON(r summary.Row) map[string]any {
	v := func(f float64) any {
		if math.IsNaN(f) {
			return nil
		}
		return f
	}
	return map[string]any{
		"year":        r.Year,
		"mu":          v(r.Mu),
		"sigma":       v(r.Sigma),
		"k_value":     v(r.KValue),
		"threshold":   v(r.Threshold),
		"diff_min":    v(r.DiffMin),
		"diff_max":    v(r.DiffMax),
		"imgs_before": v(r.ImagesBefore),
		"imgs_after":  v(r.ImagesAfter),
	}
}
