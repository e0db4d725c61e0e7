// Package config handles configuration loading, parsing, and validation
// from environment variables and optional config files. It provides
// type-safe access to the capacity, quota, and staleness policy settings
// the coordination components receive at construction, keeping
// configuration details separate from decision logic.
package config
