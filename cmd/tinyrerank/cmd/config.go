package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/tinyrerank/configs"
	"github.com/Aman-CERP/tinyrerank/internal/config"
	"github.com/Aman-CERP/tinyrerank/internal/output"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration",
		Long: `Show or create tinyrerank configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/tinyrerank/config.yaml)
  3. --config file, else project config (<root>/.tinyrerank.yaml)
  4. <root>/.env
  5. Environment variables (TINYRERANK_*)
  6. Command-line flags`,
		Example: `  # Show effective configuration
  tinyrerank --root ./docs config show

  # Write a default project config
  tinyrerank --root ./docs config init

  # Write a default user config, replacing an existing one
  tinyrerank config init --user --force`,
	}

	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigPathCmd(g))

	return cmd
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config(cmd)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(cfg)
			}

			shown := *cfg
			shown.Embedder.APIKey = ""
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
			if len(cfg.Sources) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "# sources: defaults")
			}
			for _, src := range cfg.Sources {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", src)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	var force bool
	var user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade a configuration file",
		Long: `Write the default configuration to <root>/.tinyrerank.yaml (the current
directory without --root), or to the user config with --user.

A new file is written from the commented template. An existing file is left
alone unless --force is given, in which case it is backed up and rewritten
with its settings layered over the current defaults. The newest three
backups are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, g, user, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Upgrade an existing file (after a backup)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")
	return cmd
}

func newConfigPathCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user and project config paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\n", config.GetUserConfigPath())
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "project: %s\n", projectConfigTarget(g.root))
			return nil
		},
	}
}

func projectConfigTarget(root string) string {
	if root == "" {
		root = "."
	}
	if existing := config.ProjectConfigPath(root); existing != "" {
		return existing
	}
	return filepath.Join(root, config.ProjectConfigName)
}

func runConfigInit(cmd *cobra.Command, g *globalOptions, user, force bool) error {
	out := output.New(cmd.OutOrStdout())

	path := projectConfigTarget(g.root)
	if user {
		path = config.GetUserConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to upgrade it with new defaults (a backup is kept)")
			return nil
		}
		return runConfigUpgrade(out, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Status("📋", "Run 'tinyrerank config show' to verify")
	return nil
}

// runConfigUpgrade rewrites an existing file with its own settings layered
// over the current defaults.
func runConfigUpgrade(out *output.Writer, path string) error {
	existing, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	backupPath, err := config.BackupFile(path)
	if err != nil {
		return fmt.Errorf("failed to backup config: %w", err)
	}
	if err := existing.WriteYAML(path); err != nil {
		return err
	}

	out.Success("Configuration upgraded")
	out.Statusf("📁", "Location: %s", path)
	out.Statusf("💾", "Backup: %s", backupPath)
	out.Status("💡", "Your existing settings have been preserved")
	return nil
}
