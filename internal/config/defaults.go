package config

import (
	"time"
)

// GetDefaultConfig returns the compiled-in default configuration.
// The defaults mirror a single-node development setup: everything on
// localhost, in-memory registry, the stock commerce chart.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Cluster: ClusterConfig{
			NamespacePrefix: "tenant-",
		},
		Release: ReleaseConfig{
			ChartRef:   "bitnami/wordpress",
			HelmBinary: "helm",
		},
		Registry: RegistryConfig{
			Backend: RegistryBackendMemory,
		},
		Provisioning: ProvisioningConfig{
			BaseDomain:            "localhost",
			AdminPath:             "/wp-admin",
			InstallTimeout:        Duration(5 * time.Minute),
			PollInterval:          Duration(5 * time.Second),
			ProvisionDeadline:     Duration(10 * time.Minute),
			DeleteConfirmDeadline: Duration(5 * time.Minute),
			SizingClasses: map[string]SizingClass{
				"small":  {AppVolumeSize: "5Gi", DataVolumeSize: "3Gi"},
				"medium": {AppVolumeSize: "10Gi", DataVolumeSize: "5Gi"},
				"large":  {AppVolumeSize: "20Gi", DataVolumeSize: "10Gi"},
			},
			DefaultSizingClass: "small",
		},
	}
}
