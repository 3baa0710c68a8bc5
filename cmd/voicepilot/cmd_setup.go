package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jerhadf/voice-computer-use/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Voicepilot Setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.BaseURL = prompt(scanner, "Anthropic base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = prompt(scanner, "Anthropic API key", cfg.LLM.APIKey)
		cfg.LLM.Model = prompt(scanner, "Model", cfg.LLM.Model)
		cfg.LLM.MaxTokens = promptInt(scanner, "Max output tokens", cfg.LLM.MaxTokens)
		cfg.Tools.Display = prompt(scanner, "X display", cfg.Tools.Display)
		cfg.HTTP.Listen = prompt(scanner, "HTTP listen address", cfg.HTTP.Listen)
		cfg.Voice.Enabled = promptBool(scanner, "Enable voice bridge", cfg.Voice.Enabled)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func promptInt(scanner *bufio.Scanner, label string, defaultVal int) int {
	n, err := strconv.Atoi(prompt(scanner, label, strconv.Itoa(defaultVal)))
	if err != nil {
		fmt.Printf("  not a number, keeping %d\n", defaultVal)
		return defaultVal
	}
	return n
}

func promptBool(scanner *bufio.Scanner, label string, defaultVal bool) bool {
	b, err := strconv.ParseBool(prompt(scanner, label, strconv.FormatBool(defaultVal)))
	if err != nil {
		return defaultVal
	}
	return b
}
