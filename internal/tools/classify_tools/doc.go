// Package classify_tools exposes the email classifier as MCP tools.
//
//   - classify_email: label a piece of email content
//   - list_categories: list the labels classify_email can return
package classify_tools
