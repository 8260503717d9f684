// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the gateway configuration structure
// including server settings, upstream nodes, health check probing, strategy
// selection and circuit breaking.
package config
