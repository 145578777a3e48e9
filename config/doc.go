// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including the ingest and admin listen addresses, the backend fleet, the
// assignment file path, rebalance timings, and pool settings.
package config
