// Package cache keeps the last successfully fetched inbox list per user so
// the dashboard can fall back to it when Gmail is unavailable.
//
// Three backends implement Cache:
//   - memory: process-local map, the default
//   - valkey: shared Valkey (Redis protocol) server
//   - sqlite: local SQLite file, survives restarts
//
// ListCache layers the inbox list encoding, per-user keys and metrics on top
// of a backend.
package cache
