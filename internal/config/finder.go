package config

import (
	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// ConfigExtensions are the config file formats viper reads, in lookup order
var ConfigExtensions = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig finds a .ghostbind.* config file by walking up directories
func FindLocalConfig(dir string) string {
	names := make([]string, 0, len(ConfigExtensions))
	for _, ext := range ConfigExtensions {
		names = append(names, ".ghostbind."+ext)
	}

	return utils.FindUp(dir, names...)
}
