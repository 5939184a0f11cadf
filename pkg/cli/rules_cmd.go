package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"raillake/internal/config"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect declared transformation rules",
	}
	cmd.AddCommand(newRulesListCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List declared rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			rules, err := config.LoadRules(cfg.RulesPath)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), rules)
			}
			rows := make([][]string, len(rules))
			for i, rule := range rules {
				rows[i] = []string{
					rule.Name,
					string(rule.Kind),
					string(rule.Layer),
					rule.Target,
					strings.Join(rule.Inputs, ","),
				}
			}
			printTable(cmd.OutOrStdout(),
				[]string{"name", "kind", "layer", "target", "inputs"},
				rows)
			return nil
		},
	}
}
