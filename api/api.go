// Package api contains common constants for daemon and client.
package api

// Common constants for daemon and client.
const (
	// DefaultVersion of Current REST API
	DefaultVersion = "1"
	// MaxReceiptSize is the largest request body the daemon accepts.
	MaxReceiptSize = 1 << 20
)
