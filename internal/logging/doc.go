// Package logging provides structured logging helpers for inboxsorter.
//
// All components log through log/slog. This package keeps attribute names
// consistent and makes sure user identifiers and credentials never reach
// the log output in clear text.
//
// # Usage Patterns
//
// Create a logger scoped to an operation:
//
//	logger := logging.WithOperation(slog.Default(), "gmail.list")
//	logger.Info("listing emails", logging.Status(logging.StatusSuccess))
//
// Identify a user without exposing the address:
//
//	logger.Info("session refreshed", logging.UserHash(email))
package logging
