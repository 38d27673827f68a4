package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/recordflow/internal/transform"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file",
		Long: `Loads the configuration, validates it and compiles every business
rule, including rule guards. Nothing is processed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				root.configPath = args[0]
			}
			if root.configPath == "" {
				return errors.New("no configuration file given")
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			tr, err := transform.New(&cfg.Spec.Transformer)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration %q is valid: %d business rules\n",
				cfg.Metadata.Name, tr.RuleCount())
			return err
		},
	}
}
