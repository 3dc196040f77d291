// Package config loads client configuration from the environment and
// custom estimate deck definitions from a deck directory.
package config
