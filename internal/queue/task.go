// Package queue carries scan-completion notifications from the
// (collaborator-owned) catalog scanner to the reindex worker, over a
// Redis stream.
package queue

// TaskType discriminates the kinds of task this stream carries. Only
// one exists today; the type is kept so a second task kind doesn't
// require a wire-format break.
type TaskType string

const TaskTypeScanCompleted TaskType = "scan_completed"

// ScanCompletedTask is enqueued by the catalog scanner once a scan
// finishes, so the reindex worker can refresh the embedding store for
// the connection's latest catalog snapshot.
type ScanCompletedTask struct {
	ConnectionID int64
	ScanID       int64
	Attempt      int
}

// StreamName is the single Redis stream this package reads and
// writes; kept as a function (rather than a bare const) to mirror the
// teacher's per-entity stream-naming convention even though this
// domain needs only one stream.
func StreamName() string {
	return "sqlrag:scan-completed"
}
