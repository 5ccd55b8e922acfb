package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/personal-pl/plctl/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage the configuration file",
		Annotations: map[string]string{offlineKey: "true"},
	}
	configCmd.AddCommand(
		newConfigInitCommand(a),
		newConfigShowCommand(a),
		newConfigPathCommand(a),
	)
	return configCmd
}

func newConfigInitCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, a, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func runConfigInit(cmd *cobra.Command, a *app, force bool) error {
	if _, err := os.Stat(a.configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", a.configPath, err)
	}

	// Environment overrides are not written.
	cfg := config.Default()
	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
	}
	if err := config.Save(a.configPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", a.configPath)
	return nil
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}

func newConfigPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config, session and ledger file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:  %s\n", a.configPath)
			fmt.Fprintf(out, "session: %s\n", a.cfg.SessionFile(a.configPath))
			fmt.Fprintf(out, "ledger:  %s\n", a.cfg.LedgerFile(a.configPath))
			return nil
		},
	}
}
