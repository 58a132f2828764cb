// Package flags formats usage text for command flags that accept a fixed set of values.
package flags
