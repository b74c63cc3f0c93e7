// Package config reads CAPTURE_BRIDGE_* environment variables and builds the
// logger and driver loader they describe.
package config
