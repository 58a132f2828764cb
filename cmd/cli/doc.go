// Package cli constructs the foldmerge command-line interface, wiring the Cobra command hierarchy,
// the layered configuration loader, and structured logging around the fold run command.
package cli
