package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/state"
)

func newRenderCmd(flags *globalFlags) *cobra.Command {
	var (
		year    int
		stage   string
		opacity   float64
		flat      bool
		unchecked bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the command list a renderer would receive for a selection",
		Long: `render discovers the index, builds the initial view, applies the selection
given by flags, and prints the full command list. With -o table it prints
one line per command slot.

A year outside the index is rejected unless --unchecked is set, in which
case the selection is forced to show the missing-year commands.`,
		Example: `  floodctl render
  floodctl render --year 2021 --stage after --opacity 0.3 --2d
  floodctl render --year 2030 --unchecked`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := flags.buildDeps(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			idx := deps.Discovery.Run(ctx, deps.Candidates).Index
			ctrl := deps.Controller
			if ref := deps.Config.SummaryRef; ref != "" {
				ctrl = ctrl.WithSummary(deps.Summaries.Load(ctx, ref))
			}

			var cmds []domain.Command
			v, ok := state.Initial(idx, deps.Preferences())
			if !ok {
				cmds = ctrl.NoData()
			} else {
				if cmd.Flags().Changed("year") {
					switch {
					case idx.Has(year):
						v = state.SelectYear(v, idx, year)
					case unchecked:
						// Diagnostic only: no mutation can select an unindexed year.
						v.SelectedYear = year
					default:
						return fmt.Errorf("year %d is not indexed (use --unchecked to render it anyway)", year)
					}
				}
				if stage != "" {
					s, err := domain.ParseStage(stage)
					if err != nil {
						return err
					}
					v = state.SelectPrimaryStage(v, idx, s)
				}
				if cmd.Flags().Changed("opacity") {
					v = state.SetOpacity(v, opacity)
				}
				if flat && v.Is3D {
					v = state.Toggle3D(v)
				}
				cmds = ctrl.Render(v, idx)
			}

			out := cmd.OutOrStdout()
			if flags.Format == formatJSON {
				return writeJSON(out, cmds)
			}
			printSimpleTable(out, []string{"TARGET", "OP", "KEY"}, func(add func(...string)) {
				for _, c := range cmds {
					add(string(c.Target), c.Op, c.Key)
				}
			})
			fmt.Fprintf(out, "\n%d commands for %s\n", len(cmds), describe(v, idx, ok))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&year, "year", 0, "year to select")
	f.StringVar(&stage, "stage", "", "primary stage: before, during, after or comparative")
	f.Float64Var(&opacity, "opacity", 0.6, "layer opacity in [0,1]")
	f.BoolVar(&flat, "2d", false, "render the flat 2D view")
	f.BoolVar(&unchecked, "unchecked", false, "allow a --year outside the index")
	return cmd
}

func describe(v state.ViewState, idx domain.Index, ok bool) string {
	if !ok {
		return "the no-data state"
	}
	if !idx.Has(v.SelectedYear) {
		return fmt.Sprintf("%d (not indexed)", v.SelectedYear)
	}
	return v.Key().String()
}
