// Package config handles loading and parsing of configuration from YAML
// files and environment variables. It defines the gateway configuration
// structure including the listen address, registered services with their
// route prefixes, health check interval, CORS origins, and logging.
package config
