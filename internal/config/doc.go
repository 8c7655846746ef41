// Package config loads the serve configuration.
//
// Values are resolved by viper in this order: command-line flags, INBOXSORTER_*
// environment variables, the unprefixed legacy variables (GOOGLE_CLIENT_ID,
// OPENAI_API_KEY, ...), an optional YAML file, then defaults.
package config
