// Package config loads the service configuration with viper from defaults,
// an optional YAML file and QUILL_-prefixed environment variables, then
// validates it with struct tags. Every command fails fast on an invalid
// configuration.
package config
