// Package config loads, normalizes, and validates reelsmith configuration data.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, loads a working-directory .env file, and honours environment
// fallbacks such as LLM_API_KEY and KIE_API_KEY. The Config type centralizes
// every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
