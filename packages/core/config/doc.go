// Package config loads project configuration from JSON or YAML files,
// providing the defaults every run starts from.
package config
