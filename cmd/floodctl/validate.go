package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/flood-extent-service/internal/discovery"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newValidateCmd(flags *globalFlags) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the data source serves the catalog",
		Long: `validate runs discovery and fails when a dataset exists but cannot be read,
when nothing was indexed, or when a configured summary table is empty.
Missing datasets are expected and only fail with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := flags.buildDeps(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			res := deps.Discovery.Run(ctx, deps.Candidates)

			sources := &phase{name: "sources"}
			for _, e := range res.Excluded {
				switch {
				case e.Reason == discovery.OutcomeUnavailable && !strict:
				case e.Reason == discovery.OutcomeInvalid:
					sources.errorf("%s: invalid catalog entry", e.Key)
				default:
					sources.errorf("%s (%s): %s", e.Key, e.SourceRef, e.Reason)
				}
			}

			index := &phase{name: "index"}
			if res.Index.Empty() {
				index.errorf("no datasets found among %d candidates", res.Candidates)
			}

			table := &phase{name: "summary"}
			if ref := deps.Config.SummaryRef; ref != "" {
				if rows := deps.Summaries.Load(ctx, ref); len(rows) == 0 {
					table.errorf("%s yielded no rows", ref)
				}
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, p := range []*phase{sources, index, table} {
				if p.passed() {
					fmt.Fprintf(out, "PASS  %s\n", p.name)
					continue
				}
				failed++
				fmt.Fprintf(out, "FAIL  %s\n", p.name)
				for _, e := range p.errors {
					fmt.Fprintf(out, "      %s\n", e)
				}
			}
			if failed > 0 {
				return errors.New("validation failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat missing datasets as failures")
	return cmd
}
