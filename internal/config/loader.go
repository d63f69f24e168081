package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/tenantd"
	projectConfigDir = ".tenantd"
	configFileName   = "config.yaml"

	// registryDSNEnv overrides the registry DSN so credentials stay out of
	// the YAML files.
	registryDSNEnv = "TENANTD_REGISTRY_DSN"
)

// LoadConfig loads the tenantd configuration by layering default, user, and
// project settings, then applying environment overrides.
func LoadConfig() (Config, error) {
	// 1. Start with the default configuration
	config := GetDefaultConfig()

	// 2. Determine user-specific configuration path
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// Log this error but don't fail; user config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Determine project-specific configuration path
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		// Log this error but don't fail; project config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	// 4. Environment overrides
	if dsn := os.Getenv(registryDSNEnv); dsn != "" {
		config.Registry.DSN = dsn
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd() // Use mockable variable
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
// Zero values in the overlay leave the base value in place.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Server.Host != "" {
		merged.Server.Host = overlay.Server.Host
	}
	if overlay.Server.Port != 0 {
		merged.Server.Port = overlay.Server.Port
	}
	if len(overlay.Server.AllowedOrigins) > 0 {
		merged.Server.AllowedOrigins = overlay.Server.AllowedOrigins
	}

	if overlay.Cluster.KubeContext != "" {
		merged.Cluster.KubeContext = overlay.Cluster.KubeContext
	}
	if overlay.Cluster.NamespacePrefix != "" {
		merged.Cluster.NamespacePrefix = overlay.Cluster.NamespacePrefix
	}

	if overlay.Release.ChartRef != "" {
		merged.Release.ChartRef = overlay.Release.ChartRef
	}
	if overlay.Release.HelmBinary != "" {
		merged.Release.HelmBinary = overlay.Release.HelmBinary
	}

	if overlay.Registry.Backend != "" {
		merged.Registry.Backend = overlay.Registry.Backend
	}
	if overlay.Registry.DSN != "" {
		merged.Registry.DSN = overlay.Registry.DSN
	}

	if overlay.Provisioning.BaseDomain != "" {
		merged.Provisioning.BaseDomain = overlay.Provisioning.BaseDomain
	}
	if overlay.Provisioning.AdminPath != "" {
		merged.Provisioning.AdminPath = overlay.Provisioning.AdminPath
	}
	if overlay.Provisioning.InstallTimeout != 0 {
		merged.Provisioning.InstallTimeout = overlay.Provisioning.InstallTimeout
	}
	if overlay.Provisioning.PollInterval != 0 {
		merged.Provisioning.PollInterval = overlay.Provisioning.PollInterval
	}
	if overlay.Provisioning.ProvisionDeadline != 0 {
		merged.Provisioning.ProvisionDeadline = overlay.Provisioning.ProvisionDeadline
	}
	if overlay.Provisioning.DeleteConfirmDeadline != 0 {
		merged.Provisioning.DeleteConfirmDeadline = overlay.Provisioning.DeleteConfirmDeadline
	}
	if overlay.Provisioning.DefaultSizingClass != "" {
		merged.Provisioning.DefaultSizingClass = overlay.Provisioning.DefaultSizingClass
	}
	// Sizing classes merge by name; an overlay entry replaces the base entry.
	if len(overlay.Provisioning.SizingClasses) > 0 {
		classes := make(map[string]SizingClass, len(merged.Provisioning.SizingClasses))
		for name, sc := range merged.Provisioning.SizingClasses {
			classes[name] = sc
		}
		for name, sc := range overlay.Provisioning.SizingClasses {
			classes[name] = sc
		}
		merged.Provisioning.SizingClasses = classes
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
