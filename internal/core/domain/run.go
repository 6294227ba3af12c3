package domain

import "time"

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	// RunResumed means a pending checkpoint was resent and no fresh work was done.
	RunResumed RunStatus = "resumed"
	// RunCompleted means fresh data was collected and sent.
	RunCompleted RunStatus = "completed"
	// RunFailed means the run ended with an error.
	RunFailed RunStatus = "failed"
)

// RunOptions tunes a single pipeline run.
type RunOptions struct {
	// MaxOwners limits the number of owners processed. Zero means no limit.
	MaxOwners int

	// ReferenceDate, when set, triggers by-date reconciliation of every owner.
	ReferenceDate *time.Time

	// SkipResume disables the resume step.
	SkipResume bool
}

// OwnerResult is the outcome of collecting one owner.
type OwnerResult struct {
	Owner Owner

	// Records lists the documents placed or found for the owner.
	Records []DocumentRecord

	// NewCount is the number of documents classified NEW.
	NewCount int

	// Fetched lists the ids downloaded during this collection. They are
	// sent even when a date pass has already moved them to base.
	Fetched []string

	// Degraded is set when the ledger could not be read and every
	// document was treated as NEW.
	Degraded bool

	// Err is the failure that stopped collection of this owner.
	Err error
}

// Succeeded reports whether the owner was collected.
func (r OwnerResult) Succeeded() bool {
	return r.Err == nil
}

// RunResult summarises a pipeline run.
type RunResult struct {
	RunID     string
	Status    RunStatus
	BatchID   string
	StartedAt time.Time
	EndedAt   time.Time
	Owners    []OwnerResult
	Documents int

	// OwnersTotal and OwnersFailed survive persistence when Owners does not.
	OwnersTotal  int
	OwnersFailed int

	Send       *SendResult
	Checkpoint *CheckpointInfo
	Error      string
}

// ReconcileMode selects a reconciliation algorithm.
type ReconcileMode string

const (
	// ReconcileByPresence derives classification from where files are found.
	ReconcileByPresence ReconcileMode = "presence"
	// ReconcileByDate places files according to their source date.
	ReconcileByDate ReconcileMode = "date"
)

// ReconcileRequest asks for a standalone reconciliation pass.
type ReconcileRequest struct {
	Mode   ReconcileMode
	Owners []string

	// Reference is required for ReconcileByDate.
	Reference time.Time
}
