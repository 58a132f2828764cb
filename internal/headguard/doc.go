// Package headguard decides whether a working tree's branch topology is safe for the priority merge.
package headguard
