// Package config provides configuration management for tenantd.
//
// This package implements a layered configuration system that allows
// operators to customize tenantd's behavior through YAML files.
// Configuration is loaded from multiple sources and merged in a specific
// order, with later sources overriding earlier ones.
//
// # Configuration Layers
//
//  1. Default Configuration (embedded in binary)
//     - Provides sensible defaults for a single-node development setup
//
//  2. User Configuration (~/.config/tenantd/config.yaml)
//     - Operator-specific settings that apply to all deployments
//
//  3. Project Configuration (./.tenantd/config.yaml)
//     - Deployment-specific settings in the working directory
//     - Allows teams to share configuration via version control
//
//  4. Environment overrides
//     - TENANTD_REGISTRY_DSN replaces the registry DSN so database
//       credentials never live in a YAML file
//
// # Configuration Structure
//
// The configuration file uses YAML format with the following main sections:
//
//	server:
//	  port: 8080
//	cluster:
//	  namespacePrefix: "tenant-"
//	release:
//	  chartRef: "bitnami/wordpress"
//	registry:
//	  backend: "postgres"
//	provisioning:
//	  baseDomain: "example.com"
//	  provisionDeadline: 10m
package config
