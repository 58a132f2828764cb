// Package divergence confirms that a pushed target branch and its remote-tracking branch point at
// the same history.
package divergence
