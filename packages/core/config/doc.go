// Package config handles configuration loading and management for tally.
//
// It provides functionality for:
//   - Loading configuration from .tally.yaml, .tally.yml or tally.yaml
//   - Default configuration values
//   - Environment overrides such as TALLY_NOCAPTURE
package config
