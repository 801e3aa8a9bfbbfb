// Package llm defines the completion-service contract used by the engine.
// Providers live in sub-packages and normalize their replies into a
// Response so the engine never inspects provider payloads.
package llm
