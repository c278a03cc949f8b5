package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/batchidx/configs"
	"github.com/Aman-CERP/batchidx/internal/config"
	"github.com/Aman-CERP/batchidx/internal/output"
)

func newConfigCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage batchidx configuration files.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config ($XDG_CONFIG_HOME/batchidx/config.yaml)
  3. Project config (.batchidx.yaml)
  4. Environment variables (BATCHIDX_*)`,
	}

	cmd.AddCommand(newConfigInitCmd(st))
	cmd.AddCommand(newConfigShowCmd(st))
	cmd.AddCommand(newConfigPathCmd(st))
	return cmd
}

func newConfigInitCmd(st *state) *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Example: `  # Create .batchidx.yaml in the project directory
  batchidx config init

  # Create the user config, replacing an existing one (a backup is kept)
  batchidx config init --user --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, tmpl := st.projectConfigPath(), configs.ProjectConfigTemplate
			if user {
				path, tmpl = config.GetUserConfigPath(), configs.UserConfigTemplate
			}
			return runConfigInit(cmd, path, tmpl, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file after backing it up")
	cmd.Flags().BoolVar(&user, "user", false, "Create the user config instead of the project config")
	return cmd
}

func (st *state) projectConfigPath() string {
	dir, err := filepath.Abs(st.projectDir)
	if err != nil {
		dir = st.projectDir
	}
	return filepath.Join(dir, config.ProjectFileName)
}

func runConfigInit(cmd *cobra.Command, path, tmpl string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Status("💡", "Use --force to replace it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(tmpl), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	return nil
}

func newConfigShowCmd(st *state) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after merging defaults, user config, project config and environment.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(st.cfg)
			}
			data, err := yaml.Marshal(st.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			out.Status("⚙️ ", "Effective configuration")
			out.Code(string(data))
			if backups, err := config.ListBackups(st.projectConfigPath()); err == nil && len(backups) > 0 {
				out.Statusf("💾", "%d backup(s) of the project config, newest %s", len(backups), backups[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			output.New(cmd.OutOrStdout()).Fields(
				"User", config.GetUserConfigPath(),
				"Project", st.projectConfigPath(),
			)
			return nil
		},
	}
}
