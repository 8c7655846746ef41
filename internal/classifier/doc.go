// Package classifier labels an email with one of six categories.
//
// Classify prefers a chat completion call and falls back to keyword
// matching whenever no API key is available, the call fails, or the circuit
// breaker around the LLM endpoint is open. Callers always get a label.
package classifier
