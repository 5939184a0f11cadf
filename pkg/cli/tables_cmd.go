package cli

import (
	"github.com/spf13/cobra"

	"raillake/internal/domain"
)

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect registered layer tables",
	}
	cmd.AddCommand(newTablesListCmd())
	cmd.AddCommand(newTablesHistoryCmd())
	cmd.AddCommand(newTablesReadCmd())
	return cmd
}

func newTablesListCmd() *cobra.Command {
	var layer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			tables, _, err := env.app.Services.Catalog.ListTables(cmd.Context(),
				domain.Layer(layer), domain.PageRequest{MaxResults: 500})
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				out := make([]map[string]interface{}, len(tables))
				for i, t := range tables {
					out[i] = tableJSON(t)
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			rows := make([][]string, len(tables))
			for i, t := range tables {
				rows[i] = []string{
					t.Name,
					string(t.Layer),
					formatInt(t.CurrentVersion),
					formatInt(t.SchemaRevision),
					formatTime(t.UpdatedAt),
				}
			}
			printTable(cmd.OutOrStdout(),
				[]string{"name", "layer", "version", "revision", "updated"},
				rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "", "Filter by layer (bronze, silver, gold)")
	return cmd
}

func newTablesHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <table>",
		Short: "Show the version history of a table, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			versions, _, err := env.app.Services.Catalog.History(cmd.Context(),
				args[0], domain.PageRequest{MaxResults: 500})
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				out := make([]map[string]interface{}, len(versions))
				for i, v := range versions {
					out[i] = versionJSON(v)
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			rows := make([][]string, len(versions))
			for i, v := range versions {
				rows[i] = []string{
					formatInt(v.Version),
					formatInt(v.RowCount),
					formatInt(v.ByteSize),
					v.RuleName,
					shortHash(v.ContentHash),
					formatTime(v.CreatedAt),
				}
			}
			printTable(cmd.OutOrStdout(),
				[]string{"version", "rows", "bytes", "rule", "content_hash", "created"},
				rows)
			return nil
		},
	}
}

func newTablesReadCmd() *cobra.Command {
	var versionFlag int64

	cmd := &cobra.Command{
		Use:   "read <table>",
		Short: "Read the rows of a table version",
		Long:  "Reads the current version of a table, or a historical one with --version. Any committed version stays readable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			var data *domain.TableData
			if cmd.Flags().Changed("version") {
				data, err = env.app.Services.Catalog.ReadVersion(cmd.Context(), args[0], versionFlag)
			} else {
				data, err = env.app.Services.Catalog.ReadCurrent(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"table":           data.TableName,
					"version":         data.Version,
					"schema_revision": data.SchemaRevision,
					"schema":          data.Schema,
					"rows":            rowsJSON(data.Schema, data.Rows),
				})
			}
			columns := make([]string, len(data.Schema))
			for i, col := range data.Schema {
				columns[i] = col.Name
			}
			rows := make([][]string, len(data.Rows))
			for i, row := range data.Rows {
				cells := make([]string, len(row))
				for j, v := range row {
					if j < len(data.Schema) {
						cells[j] = domain.FormatValue(data.Schema[j].Type, v)
					}
				}
				rows[i] = cells
			}
			printTable(cmd.OutOrStdout(), columns, rows)
			return nil
		},
	}

	cmd.Flags().Int64Var(&versionFlag, "version", 0, "Version to read (default: current)")
	return cmd
}
