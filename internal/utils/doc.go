// Package utils holds the configuration and logging plumbing shared by every command.
//
// ConfigurationLoader layers embedded defaults, an optional configuration file, and
// FOLDMERGE_* environment variables through Viper. LoggerFactory builds zap loggers that
// write to standard error and to the run log file.
package utils
