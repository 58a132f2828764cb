// Package orchestrator sequences one fold run per project directory: staging, classification,
// quarantine, head checks, the priority merge, divergence verification, and terminal routing to
// the archive or error area with exactly one terminal notification.
package orchestrator
