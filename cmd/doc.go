// Package cmd implements the command-line interface for inboxsorter.
//
// This package provides the following commands:
//   - serve: Start the web app (sign-in, dashboard and JSON API)
//   - classify: Classify email content from an argument or stdin
//   - mcp: Serve the classifier as MCP tools over stdio
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
