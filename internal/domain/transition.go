package domain

import "time"

// StageTransition is one immutable audit-log entry capturing a stage
// change. Entries are never updated or deleted after creation, and
// exactly one is written per logical transition.
type StageTransition struct {
	ID             string
	ProgramID      string
	FromStage      Stage
	ToStage        Stage
	TransitionedBy string
	TransitionedAt time.Time
	ApprovalNotes  string
}
