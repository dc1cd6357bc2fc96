// Package config loads, normalizes, and validates vidscribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and resolves the Hugging Face credential from
// call-time values, HF_TOKEN, HUGGING_FACE_HUB_TOKEN, or the persisted file, in
// that order. The Config type centralizes every knob the CLI and pipeline need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
