// Package config loads, normalizes, and validates loopdeck configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// YOUTUBE_API_KEY, optionally sourced from a .env file next to the config.
// The Config type centralizes every knob the daemon, the CLI and the pipeline
// stages need: vocal score threshold, loudness target, separation cutoffs,
// crossfade length, worker pool sizes and storage backends.
//
// Stages receive the loaded *Config through their constructors and treat it as
// immutable. Always obtain settings through this package so downstream code
// receives sanitized paths and clear validation errors.
package config
