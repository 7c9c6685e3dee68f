// Package config loads the YAML configuration for the commute score engine,
// applies defaults and validates it. Invalid configuration is fatal at startup.
package config
