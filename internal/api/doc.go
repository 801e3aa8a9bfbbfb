// Package api exposes the HTTP interface: agent sessions and their turns,
// a read-only customer listing, workflow run submission and inspection, plus
// health and metrics endpoints.
package api
