// Package changes classifies the pending changes of a working tree into modified, removed, and
// untracked paths without touching the tree.
package changes
