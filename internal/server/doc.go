// Package server is the web front end of inboxsorter.
//
// # Routes
//
//	GET  /                         sign-in page and OpenAI key form
//	POST /settings/openai-key      store or clear the user's OpenAI key
//	GET  /auth/login               start the Google OAuth flow
//	GET  /auth/callback            finish the flow and create the session
//	     /auth/logout              drop the session
//	GET  /dashboard                inbox list, detail and classification
//	GET  /api/gmail                JSON mail proxy (?count= or ?id=)
//	POST /api/classify             JSON classification
//	GET  /healthz, /readyz, /healthz/detailed
//
// Every protected route runs behind session.Middleware, which refreshes an
// expired Google token before the handler sees the request. The dashboard
// keeps the last list it fetched in a cache.ListCache and falls back to it
// when Gmail fails.
//
// Prometheus metrics are served separately by MetricsServer.
package server
