package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"kmerge/internal/config"
	kerrors "kmerge/internal/errors"
	"kmerge/internal/paths"
)

// ConfigShowResponse is the JSON form of `kmerge config show`.
type ConfigShowResponse struct {
	ConfigPath   string               `json:"configPath,omitempty"`
	UsedDefaults bool                 `json:"usedDefaults"`
	EnvOverrides []config.EnvOverride `json:"envOverrides,omitempty"`
	Config       map[string]any       `json:"config"`
}

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect kmerge configuration",
		Long:  "View the effective configuration from .kmerge/config.json, $KMERGE_CONFIG_PATH and environment overrides.",
	}

	var format string
	var diffOnly bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration a merge would use.

Examples:
  kmerge config show
  kmerge config show --format json
  kmerge config show --diff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			of, err := parseOutputFormat(format)
			if err != nil {
				return kerrors.New(kerrors.InvalidArguments, "bad --format", err)
			}
			return showConfig(a, of, diffOnly)
		},
	}
	showCmd.Flags().StringVar(&format, "format", "human", "Output format (json, human)")
	showCmd.Flags().BoolVar(&diffOnly, "diff", false, "Only show values that differ from defaults")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "List supported environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(a.stdout, "Supported environment variables:")
			fmt.Fprintf(a.stdout, "  %s\n", config.EnvConfigPath)
			for _, name := range config.GetSupportedEnvVars() {
				fmt.Fprintf(a.stdout, "  %s\n", name)
			}
			fmt.Fprintln(a.stdout, "  KMERGE_HOME")
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to .kmerge/config.json",
		Long: `Create .kmerge/config.json in the current directory with the built-in
defaults, ready to edit.

Examples:
  kmerge config init
  kmerge config init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return kerrors.New(kerrors.InternalError, "cannot determine working directory", err)
			}
			path := paths.ConfigPath(wd)
			if _, err := os.Stat(path); err == nil && !force {
				return kerrors.Newf(kerrors.InvalidArguments, "%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().Save(wd); err != nil {
				return kerrors.New(kerrors.ConfigInvalid, "cannot write configuration", err)
			}
			fmt.Fprintf(a.stdout, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(showCmd, envCmd, initCmd)
	return configCmd
}

func showConfig(a *app, format OutputFormat, diffOnly bool) error {
	result := a.loaded
	current, err := toFlatMap(result.Config)
	if err != nil {
		return kerrors.New(kerrors.InternalError, "cannot render configuration", err)
	}
	defaults, err := toFlatMap(config.DefaultConfig())
	if err != nil {
		return kerrors.New(kerrors.InternalError, "cannot render configuration", err)
	}
	if diffOnly {
		current = computeDiff(current, defaults)
	}

	if format == FormatJSON {
		out, err := formatJSON(ConfigShowResponse{
			ConfigPath:   result.ConfigPath,
			UsedDefaults: result.UsedDefaults,
			EnvOverrides: result.EnvOverrides,
			Config:       current,
		})
		if err != nil {
			return kerrors.New(kerrors.InternalError, "cannot render configuration", err)
		}
		fmt.Fprintln(a.stdout, out)
		return nil
	}

	w := a.stdout
	fmt.Fprintln(w, "kmerge configuration")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	if result.UsedDefaults {
		fmt.Fprintln(w, "Source: defaults (no config file found)")
	} else {
		fmt.Fprintf(w, "Source: %s\n", result.ConfigPath)
	}
	if len(result.EnvOverrides) > 0 {
		fmt.Fprintln(w, "\nEnvironment overrides:")
		for _, ov := range result.EnvOverrides {
			fmt.Fprintf(w, "  %s=%s -> %s\n", ov.EnvVar, ov.Value, ov.Path)
		}
	}
	fmt.Fprintln(w)
	if diffOnly && len(current) == 0 {
		fmt.Fprintln(w, "All settings are at their defaults.")
		return nil
	}
	for _, key := range sortedKeys(current) {
		line := fmt.Sprintf("%s: %s", key, displayValue(current[key]))
		if def, ok := defaults[key]; ok && !reflect.DeepEqual(def, current[key]) {
			line += fmt.Sprintf(" (default: %s)", displayValue(def))
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// computeDiff keeps the keys of current whose values differ from defaults.
func computeDiff(current, defaults map[string]any) map[string]any {
	diff := make(map[string]any)
	for k, v := range current {
		if def, ok := defaults[k]; !ok || !reflect.DeepEqual(def, v) {
			diff[k] = v
		}
	}
	return diff
}

func displayValue(v any) string {
	if s, ok := v.(string); ok && s == "" {
		return `""`
	}
	return fmt.Sprint(v)
}
