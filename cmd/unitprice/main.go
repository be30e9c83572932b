package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"unitprice/internal/app"
	"unitprice/internal/config"
	"unitprice/internal/unitprice"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
func newApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// describe renders err for the user, separating bad input from storage trouble.
func describe(err error) string {
	switch {
	case errors.Is(err, unitprice.ErrInvalidInput):
		return "invalid input: " + err.Error()
	case errors.Is(err, unitprice.ErrStorage):
		return "storage problem: " + err.Error()
	default:
		return err.Error()
	}
}

// readPassphrase prompts on the terminal without echo. Without a terminal
// it falls back to UNITPRICE_PASSPHRASE.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if p := os.Getenv("UNITPRICE_PASSPHRASE"); p != "" {
			return p, nil
		}
		return "", fmt.Errorf("no terminal for passphrase prompt; set UNITPRICE_PASSPHRASE")
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:          "unitprice",
	Short:        "Compare prices per unit and keep a price book",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := defaults.Config()
		if backend, _ := cmd.Flags().GetString("database"); backend != "" {
			cfg.Database.Type = backend
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Database: %s\n", cfg.Database.Type)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Database:      %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Mode:          %s\n", cfg.Session.Mode)
		fmt.Printf("History Limit: %d\n", cfg.Session.HistoryLimit)
		fmt.Printf("Backup:        %s %s%s (encrypt=%t)\n", cfg.Backup.Type, cfg.Backup.Root, cfg.Backup.S3Bucket, cfg.Backup.Encrypt)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("database", "", "Storage backend: sqlite, memory or badger")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(favCmd)
	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
