package app

import (
	"fmt"
	"os"
	"path/filepath"

	"unitprice/internal/config"
)

// Defaults holds the paths used when no config flag overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - UNITPRICE_CONFIG_PATH: config file location (default: ~/.config/unitprice.toml)
//   - UNITPRICE_HOME: base directory for data, logs and backups (default: ~/.local/share/unitprice)
func GetDefaults() (*Defaults, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return &Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
}

// Config returns a default configuration rooted at d.BaseDir.
func (d *Defaults) Config() *config.Config {
	return config.NewConfig(d.BaseDir)
}

func getConfigPath() (string, error) {
	if path := os.Getenv("UNITPRICE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "unitprice.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv("UNITPRICE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "unitprice"), nil
}
