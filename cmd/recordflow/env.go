package main

import (
	"os"
)

// Environment variables consulted when a flag is not given.
const (
	envConfigPath = "RECORDFLOW_CONFIG"
	envLogLevel   = "RECORDFLOW_LOG_LEVEL"
	envLogFormat  = "RECORDFLOW_LOG_FORMAT"
	envAddress    = "RECORDFLOW_ADDRESS"
)

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
