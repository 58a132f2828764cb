// Package filesystem provides the move, copy, and directory preparation primitives used to route
// project trees between the working, archive, error, and quarantine areas.
package filesystem
