package tarnctlcli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds tarnctl's settings: where the DiskDict root lives.
type Config struct {
	StorageRoot string `json:"storage_root"`
}

// rcFileName is the default rc file name under the config directory.
const rcFileName = "config.hujson"

// DefaultConfig returns the configuration used when no rc file and no
// override is present.
func DefaultConfig() Config {
	return Config{StorageRoot: "."}
}

// defaultConfigPath returns ~/.config/tarnctl/config.hujson (or
// $XDG_CONFIG_HOME/tarnctl/config.hujson if set). Returns "" if neither
// can be resolved.
func defaultConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "tarnctl", rcFileName)
	}
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "tarnctl", rcFileName)
	}
	return ""
}

// LoadConfigInput holds the inputs to LoadConfig.
type LoadConfigInput struct {
	ConfigPath        string // -c/--config flag; overrides the default rc path
	StorageRootOverride string // --storage-root flag; overrides the rc file's value
	Env               map[string]string
}

// LoadConfig layers defaults, the rc file (JSON-with-comments via
// hujson, exactly as the teacher's .tk.json loader uses it), and CLI
// overrides, highest precedence last.
func LoadConfig(input LoadConfigInput) (Config, error) {
	cfg := DefaultConfig()

	path := input.ConfigPath
	if path == "" {
		path = defaultConfigPath(input.Env)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			fileCfg, parseErr := parseConfig(data)
			if parseErr != nil {
				return Config{}, fmt.Errorf("tarnctl: parsing config %s: %w", path, parseErr)
			}
			if fileCfg.StorageRoot != "" {
				cfg.StorageRoot = fileCfg.StorageRoot
			}
		case os.IsNotExist(err):
			if input.ConfigPath != "" {
				return Config{}, fmt.Errorf("tarnctl: config file %s does not exist", path)
			}
		default:
			return Config{}, fmt.Errorf("tarnctl: reading config %s: %w", path, err)
		}
	}

	if input.StorageRootOverride != "" {
		cfg.StorageRoot = input.StorageRootOverride
	}

	abs, err := filepath.Abs(cfg.StorageRoot)
	if err != nil {
		return Config{}, fmt.Errorf("tarnctl: resolving storage root %s: %w", cfg.StorageRoot, err)
	}
	cfg.StorageRoot = abs

	return cfg, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}
