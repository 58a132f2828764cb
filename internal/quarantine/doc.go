// Package quarantine strips unexpected local changes from a working tree before the priority merge.
//
// Every flagged path still present on disk is first copied to
// <quarantine_dir>/<timestamp>/<repository>/<path>; only after all copies succeed are the paths
// reverted to HEAD or deleted. The copies are the only surviving record of the discarded work.
package quarantine
