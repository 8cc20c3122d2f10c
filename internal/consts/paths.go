package consts

import (
	"os"
	"path/filepath"
)

const (
	HomeDirName    = ".bridgekit"
	ConfigFileName = "config.yaml"
	LogFileName    = "bridgekit.log"
)

func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, HomeDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(HomeDir(), ConfigFileName)
}

func DefaultLogPath() string {
	return filepath.Join(HomeDir(), "logs", LogFileName)
}
