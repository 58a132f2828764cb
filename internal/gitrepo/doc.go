// Package gitrepo wraps the git command line behind RepositoryHandle.
//
// A handle is bound to one working tree, one remote, and the pair of branch names the fold
// workflow uses. It exposes primitive operations only; ordering, retries, and the meaning of a
// failure belong to the callers in the changes, quarantine, headguard, merge, and divergence
// packages. Remote URL helpers derive the remote location and a printable repository identity.
package gitrepo
