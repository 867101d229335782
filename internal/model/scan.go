package model

import "time"

// ScanStatus is the lifecycle state of a catalog harvest attempt.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// Scan is a single harvest attempt for a connection, written by the
// (opaque) catalog scanner and reconciled by the Schema Context Builder.
type Scan struct {
	ID           int64
	ConnectionID int64
	Status       ScanStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage *string
}

// Connection is the collaborator-owned entity the core reads a dialect
// and version marker from. Credential material is never exposed here;
// it is resolved on demand through a CredentialDecryptor.
type Connection struct {
	ID             int64
	Name           string
	Dialect        string
	LastModifiedAt time.Time
}
