// Package config loads mesh tunables from YAML with sensible defaults for
// every knob, so a config file only needs to name what it overrides.
package config
