package cli

import (
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <source>",
		Short: "Land one declared source as a new bronze version",
		Long:  "Fetches the named source, decodes and types it against the declared schema, and commits the batch as the next version of its bronze table.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.app.Services.Ingestion.Ingest(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				out := versionJSON(*res.Version)
				out["source"] = res.Batch.SourceName
				out["uri"] = res.Batch.URI
				return printJSON(cmd.OutOrStdout(), out)
			}
			printTable(cmd.OutOrStdout(),
				[]string{"source", "table", "version", "rows", "content_hash"},
				[][]string{{
					res.Batch.SourceName,
					res.Version.TableName,
					formatInt(res.Version.Version),
					formatInt(res.Version.RowCount),
					shortHash(res.Version.ContentHash),
				}})
			return nil
		},
	}
}
