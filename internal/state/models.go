package state

import "time"

// Status is a directory's position in the lifecycle.
type Status string

const (
	// StatusScanned means evidence is registered but no identification ran yet,
	// or the previous identification was invalidated by an evidence or
	// settings change.
	StatusScanned Status = "scanned"
	// StatusQueued means identification produced candidates that await a pin
	// decision.
	StatusQueued Status = "queued"
	// StatusResolved means a release is pinned and the directory is ready to
	// plan and apply.
	StatusResolved Status = "resolved"
	// StatusJailed means the directory was parked for manual attention.
	StatusJailed Status = "jailed"
	// StatusApplied is terminal: the plan was executed and verified. An applied
	// directory is never re-matched unless its evidence or settings change.
	StatusApplied Status = "applied"
)

// Directory is one scanned directory's persisted state.
type Directory struct {
	DirID               string
	Path                string
	Status              Status
	EvidenceFingerprint string
	EvidenceJSON        string
	CandidatesJSON      string
	SettingsHash        string
	PinnedProvider      string
	PinnedReleaseID     string
	AppliedPlanHash     string
	NeedsRecovery       bool
	JailReason          string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TxnState is the lifecycle of one apply transaction.
type TxnState string

const (
	TxnOpen       TxnState = "open"
	TxnCommitted  TxnState = "committed"
	TxnRolledBack TxnState = "rolled_back"
	TxnFailed     TxnState = "failed"
)

// JournalStep records how far one track's mutation progressed.
type JournalStep string

const (
	// StepIntent is written before any mutation of the track.
	StepIntent JournalStep = "intent"
	// StepTagged means the tag patch was written but the file has not moved.
	StepTagged JournalStep = "tagged"
	// StepMoved means the file reached its destination.
	StepMoved JournalStep = "moved"
)

// JournalEntry is one track's write-ahead journal row.
type JournalEntry struct {
	TxnID          string
	TrackIndex     int
	SourcePath     string
	TargetPath     string
	BeforeTagsJSON string
	Step           JournalStep
}

// PendingTransaction is an apply transaction that never finished, together
// with its journal, in track order. Recovery consumes these.
type PendingTransaction struct {
	TxnID    string
	DirID    string
	PlanHash string
	Entries  []JournalEntry
}

// ApplyRecord is one append-only audit entry for an apply attempt.
type ApplyRecord struct {
	ID         int64
	TxnID      string
	DirID      string
	PlanHash   string
	Outcome    string
	RecordJSON string
	CreatedAt  time.Time
}

// Apply outcomes persisted in the record log.
const (
	OutcomeApplied    = "applied"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
	OutcomeRecovered  = "recovered"
)
