// Package config loads, validates, and normalizes the syndicate
// configuration file.
package config
