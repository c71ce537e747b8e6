// Package config loads, validates and normalizes the palign TOML
// configuration. Defaults are provided for every key so the tool runs
// without a config file; enumerated options (aligner name,
// unknown-word policy, log level and format) are validated on load.
package config
