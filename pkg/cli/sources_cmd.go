package cli

import (
	"github.com/spf13/cobra"

	"raillake/internal/config"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect declared raw landing sources",
	}
	cmd.AddCommand(newSourcesListCmd())
	return cmd
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			sources, err := config.LoadSources(cfg.SourcesPath)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				out := make([]map[string]interface{}, len(sources))
				for i, src := range sources {
					out[i] = map[string]interface{}{
						"name":        src.Name,
						"uri":         src.URI,
						"format":      src.Format,
						"compression": src.Compression,
						"table":       src.Table,
						"schema":      src.Schema,
					}
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			rows := make([][]string, len(sources))
			for i, src := range sources {
				rows[i] = []string{
					src.Name,
					string(src.Format),
					src.Table,
					src.URI,
				}
			}
			printTable(cmd.OutOrStdout(),
				[]string{"name", "format", "table", "uri"},
				rows)
			return nil
		},
	}
}
