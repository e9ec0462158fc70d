// Package httpapi exposes the administrative HTTP surface of the scheduler:
// job listing, config updates, manual runs and execution history.
package httpapi
