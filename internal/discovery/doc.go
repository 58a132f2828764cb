// Package discovery lists the project directories waiting in an incoming area.
package discovery
