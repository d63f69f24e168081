package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use human-readable
// values like "5m" or "30s".
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in the same string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level configuration structure for tenantd.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Cluster      ClusterConfig      `yaml:"cluster"`
	Release      ReleaseConfig      `yaml:"release"`
	Registry     RegistryConfig     `yaml:"registry"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
}

// ServerConfig defines the HTTP listener for the tenant API.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`           // Host to bind to (default: 0.0.0.0)
	Port           int      `yaml:"port,omitempty"`           // Port for the API (default: 8080)
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"` // CORS origins for the browser frontend
}

// ClusterConfig defines how tenantd talks to the Kubernetes cluster.
type ClusterConfig struct {
	KubeContext     string `yaml:"kubeContext,omitempty"`     // Kubeconfig context to use; empty means current context
	NamespacePrefix string `yaml:"namespacePrefix,omitempty"` // Prefix for tenant namespaces (default: "tenant-")
}

// ReleaseConfig defines the packaged application stack installed per tenant.
type ReleaseConfig struct {
	ChartRef   string `yaml:"chartRef,omitempty"`   // Chart reference, e.g. "bitnami/wordpress"
	HelmBinary string `yaml:"helmBinary,omitempty"` // Helm executable (default: "helm")
}

// RegistryBackend selects the durable store behind the tenant registry.
type RegistryBackend string

const (
	RegistryBackendMemory   RegistryBackend = "memory"
	RegistryBackendPostgres RegistryBackend = "postgres"
)

// RegistryConfig defines the tenant registry backend.
// The DSN is usually supplied via the TENANTD_REGISTRY_DSN environment
// variable rather than the config file, so credentials stay out of YAML.
type RegistryConfig struct {
	Backend RegistryBackend `yaml:"backend,omitempty"` // "memory" or "postgres" (default: "memory")
	DSN     string          `yaml:"dsn,omitempty"`     // Postgres DSN when backend is "postgres"
}

// SizingClass maps a resource sizing class name to concrete volume sizes
// used when rendering the release values.
type SizingClass struct {
	AppVolumeSize  string `yaml:"appVolumeSize"`  // e.g. "5Gi"
	DataVolumeSize string `yaml:"dataVolumeSize"` // e.g. "3Gi"
}

// ProvisioningConfig carries the orchestrator's deadlines and the
// tenant-facing URL composition settings.
type ProvisioningConfig struct {
	BaseDomain            string                 `yaml:"baseDomain,omitempty"`            // Tenant URLs are http://<id>.<baseDomain> (default: "localhost")
	AdminPath             string                 `yaml:"adminPath,omitempty"`             // Appended to the tenant URL for the admin console
	InstallTimeout        Duration               `yaml:"installTimeout,omitempty"`        // Deadline for a single release install (default: 5m)
	PollInterval          Duration               `yaml:"pollInterval,omitempty"`          // Readiness poll interval (default: 5s)
	ProvisionDeadline     Duration               `yaml:"provisionDeadline,omitempty"`     // Overall create deadline (default: 10m)
	DeleteConfirmDeadline Duration               `yaml:"deleteConfirmDeadline,omitempty"` // Namespace-gone confirmation deadline (default: 5m)
	SizingClasses         map[string]SizingClass `yaml:"sizingClasses,omitempty"`         // Available sizing classes keyed by name
	DefaultSizingClass    string                 `yaml:"defaultSizingClass,omitempty"`    // Class applied when a request omits one
}
