// Package config loads and validates the gatherer configuration.
//
// Configuration is YAML with ${VAR} environment substitution, so
// credentials (feed API key, database password) can stay out of the
// file. Defaults are applied before validation.
package config
