package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"raillake/internal/domain"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once",
		Long:  "Ingests every declared source, then runs all transformation rules in dependency order, and reports the per-step outcome. The run fails if any step fails; completed steps keep their committed versions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			run, steps, err := env.app.Services.Pipeline.RunAll(cmd.Context())
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				out := runJSON(*run)
				stepOut := make([]map[string]interface{}, len(steps))
				for i, s := range steps {
					stepOut[i] = stepRunJSON(s)
				}
				out["steps"] = stepOut
				if printErr := printJSON(cmd.OutOrStdout(), out); printErr != nil {
					return printErr
				}
			} else {
				rows := make([][]string, len(steps))
				for i, s := range steps {
					rows[i] = stepRow(s)
				}
				printTable(cmd.OutOrStdout(),
					[]string{"step", "type", "table", "version", "rows", "rejected", "status"},
					rows)
				fmt.Fprintf(cmd.OutOrStdout(), "\nrun %s: %s\n", run.ID, run.Status)
			}

			if run.Status == domain.RunStatusFailed {
				return fmt.Errorf("pipeline run %s failed: %s", run.ID, formatStringPtr(run.ErrorMessage))
			}
			return nil
		},
	}
}
