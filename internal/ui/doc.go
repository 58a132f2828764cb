// Package ui renders git progress for people watching the console while detailed telemetry keeps
// flowing through the structured logger.
package ui
