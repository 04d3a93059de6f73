package configs

import (
	"log"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/passgit/internal/utils"
)

// UserSettings holds the on-disk locations passgit reads and writes.
type UserSettings struct {
	ConfigsPath string
	DataPath    string
	StorePath   string
	KeysPath    string
	HostKeyPath string
	AuditPath   string
	Username    string
}

var UserPassgitSettings *UserSettings

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("error getting home directory: %s", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("error getting config directory: %s", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	username, err := utils.GetUsername()
	if err != nil {
		log.Fatalf("error getting username: %s", err)
	}

	UserPassgitSettings = NewUserSettings(filepath.Join(configDir, "passgit"), filepath.Join(dataDir, "passgit"), username)
}

// NewUserSettings derives every path from a config and a data directory.
func NewUserSettings(configsPath, dataPath, username string) *UserSettings {
	return &UserSettings{
		ConfigsPath: configsPath,
		DataPath:    dataPath,
		StorePath:   filepath.Join(dataPath, "store"),
		KeysPath:    filepath.Join(dataPath, "keys"),
		HostKeyPath: filepath.Join(dataPath, ".host_key"),
		AuditPath:   filepath.Join(dataPath, "audit.jsonl"),
		Username:    username,
	}
}

// SettingsFilePath returns the location of config.toml.
func SettingsFilePath() string {
	return filepath.Join(UserPassgitSettings.ConfigsPath, "config.toml")
}
