// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (keys, channel requests, metadata) and contracts
// (storage, key derivation, logs) only.
package domain
