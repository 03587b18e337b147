// Package config loads the agent service configuration
// from the YAML file, the .env files and the environment.
package config
