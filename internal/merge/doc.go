// Package merge drives the priority merge of imported content into the target branch and its
// publication to the remote.
//
// The sequence is fetch, staging branch creation, target checkout, merge, push, and tag push.
// Network stages retry transient failures on a fixed schedule; every other failure is final.
// The merge resolves every conflict in favor of the imported content, so local-only edits on
// conflicting hunks of the target branch are discarded.
package merge
