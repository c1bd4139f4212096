package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repostats/internal/config"
	"github.com/rohankatakam/repostats/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, config file, .env files and
REPOSTATS_* environment variables are applied. Secrets are masked.`,
	Args: exactArgs(0),
	RunE: runConfigShow,
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Long: `Write the default configuration to [path]
(default: .repostats/config.yaml). Existing files are kept unless --force
is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := cfg.YAML()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityLow, "failed to render config")
	}
	if path := cfg.File(); path != "" {
		fmt.Printf("# %s\n", path)
	}
	fmt.Print(string(out))

	result := cfg.Validate()
	for _, w := range result.Warnings {
		fmt.Printf("# warning: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("# error: %s\n", e)
	}
	return result.Err()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(".repostats", "config.yaml")
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return errors.ValidationErrorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("✓ Wrote %s\n", path)
	return nil
}
