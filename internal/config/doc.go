// Package config implements the configuration store for the skytrack service.
//
// Configuration is assembled in three layers: built-in defaults, an optional
// YAML file (config.yaml or SKYTRACK_CONFIG), and SKYTRACK_* environment
// variable overrides. The merged result is validated before the service
// starts; the upstream device id and access token have no defaults and must
// be injected.
package config
