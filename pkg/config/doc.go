// Package config loads the agent configuration from a YAML file with
// POPSYNC_* environment overrides. Defaults are usable out of the box
// against a local backend.
package config
