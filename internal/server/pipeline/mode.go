package pipeline

// Mode selects how a run treats the material row.
type Mode struct {
	Name string
	// AllocateMaterial makes a run create a new material id, insert the row
	// on success and hard-delete it on rollback. Otherwise the run reuses
	// the material linked to the session, updates it in place and marks it
	// FAILED on rollback.
	AllocateMaterial bool
}

var (
	// Sync is used by callers that wait for the result.
	Sync = Mode{Name: "sync", AllocateMaterial: true}
	// Async is used by the queue worker on materials pre-created by Submit.
	Async = Mode{Name: "async"}
)
