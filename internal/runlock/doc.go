// Package runlock guarantees at most one in-flight run per repository name through exclusive lock
// files.
package runlock
