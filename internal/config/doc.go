// Package config loads the JSON configuration for empleaidod. Relative paths
// are resolved against the directory of the configuration file and every
// section receives defaults suitable for a local single-node deployment.
package config
