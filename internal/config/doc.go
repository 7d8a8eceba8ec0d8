// Package config loads the updater configuration.
//
// Values come from Defaults, then an optional YAML file (--config or
// CRMUPDATER_CONFIG) in which ${VAR} and ${VAR:-default} are expanded, then
// environment overrides such as AFFINITY_API_KEY, CRM_MODE and PORT.
// Validate checks that the selected mode has what it needs.
package config
