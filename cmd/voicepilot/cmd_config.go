package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jerhadf/voice-computer-use/internal/config"
)

var configReveal bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configResetCmd, configPathCmd)
	configListCmd.Flags().BoolVar(&configReveal, "reveal", false, "show secret values unmasked")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage voicepilot configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every key with its effective value and default",
	Long: "List every key with its effective value and default. Values overridden by " +
		"ANTHROPIC_API_KEY, ANTHROPIC_BASE_URL or DISPLAY are marked (env); a * marks " +
		"values changed from the default.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		values, err := config.ListValues(cfg, !configReveal)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		envKeys := map[string]string{
			"llm.api_key":   "ANTHROPIC_API_KEY",
			"llm.base_url":  "ANTHROPIC_BASE_URL",
			"tools.display": "DISPLAY",
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE\tDEFAULT")
		for _, k := range config.Keys() {
			def, _ := config.DefaultValue(k)
			if config.IsSecretKey(k) {
				def = ""
			}
			mark := ""
			if env, ok := envKeys[k]; ok && os.Getenv(env) != "" {
				mark = " (env)"
			} else if !config.IsSecretKey(k) && values[k] != def {
				mark = " *"
			}
			fmt.Fprintf(w, "%s\t%v%s\t%v\n", k, values[k], mark, def)
		}
		return w.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored in the config file for key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Validate and store a value; takes effect on the next start",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Make sure the file exists before editing it.
		if _, err := config.Load(cfgPath); err != nil {
			return err
		}
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		shown := args[1]
		if config.IsSecretKey(args[0]) {
			shown = "***"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], shown)
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Restore the built-in default for key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, ok := config.DefaultValue(args[0])
		if !ok {
			return fmt.Errorf("unknown config key: %s", args[0])
		}
		if _, err := config.Load(cfgPath); err != nil {
			return err
		}
		if err := config.SetValue(cfgPath, args[0], fmt.Sprint(def)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s reset to %v\n", args[0], def)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
	},
}
