package cli

import (
	"github.com/spf13/cobra"
)

func newTransformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transform <rule>",
		Short: "Run one transformation rule against current upstream versions",
		Long:  "Plans the named rule over the current versions of its inputs and commits the result as the next version of the target table. Replaying against unchanged inputs commits a content-equivalent version.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.app.Services.Pipeline.Transform(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				out := versionJSON(*res.Version)
				out["rule"] = res.Rule.Name
				out["inputs"] = res.Inputs
				out["rejected_count"] = len(res.Rejected)
				out["attempts"] = res.Attempts
				return printJSON(cmd.OutOrStdout(), out)
			}
			printTable(cmd.OutOrStdout(),
				[]string{"rule", "table", "version", "rows", "rejected", "content_hash"},
				[][]string{{
					res.Rule.Name,
					res.Version.TableName,
					formatInt(res.Version.Version),
					formatInt(res.Version.RowCount),
					formatInt(int64(len(res.Rejected))),
					shortHash(res.Version.ContentHash),
				}})
			return nil
		},
	}
}
