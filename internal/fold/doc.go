// Package fold exposes the run command that folds project directories into their remote
// repositories, together with its configuration section and run summary.
package fold
