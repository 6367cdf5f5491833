// Package config provides configuration loading and validation for the WAV sender.
// It handles YAML-based configuration layered over built-in defaults, so the
// sender runs without any config file at all.
package config
