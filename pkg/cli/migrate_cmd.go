package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	internaldb "raillake/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending metastore migrations",
		Long:  "Opens the SQLite metastore at RAILLAKE_META_DB_PATH and applies all pending schema migrations. Safe to run repeatedly.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, 1)
			if err != nil {
				return fmt.Errorf("open metastore %s: %w", cfg.MetaDBPath, err)
			}
			defer writeDB.Close()
			defer readDB.Close()

			if err := internaldb.RunMigrations(writeDB); err != nil {
				return fmt.Errorf("migrate metastore: %w", err)
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"metastore": cfg.MetaDBPath,
					"status":    "migrated",
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "metastore %s migrated\n", cfg.MetaDBPath)
			return nil
		},
	}
}
