package domain

import (
	"context"
	"io"
)

// ProgramRepository defines the persistence contract for programs and
// their transition log.
type ProgramRepository interface {
	Create(ctx context.Context, program Program) error
	GetByID(ctx context.Context, id string) (Program, error)
	GetByCode(ctx context.Context, code string) (Program, error)
	List(ctx context.Context, filter ListFilter) ([]Program, error)
	Update(ctx context.Context, program Program) error

	// UpdateWithTransition persists the program and appends one
	// transition record in a single transaction. fromStage is the stage
	// the caller observed when it validated; if the stored row no
	// longer matches, nothing is written and ErrStaleProgram is
	// returned.
	UpdateWithTransition(ctx context.Context, program Program, fromStage Stage, entry StageTransition) error

	Transitions(ctx context.Context, programID string) ([]StageTransition, error)
	Stats(ctx context.Context) (Stats, error)
}

// ListFilter holds optional criteria for listing programs.
type ListFilter struct {
	Stage           *Stage
	FinanceApproved *bool
	OpsAccepted     *bool
	NotRejectedBy   RejectionStatus // exclude programs carrying this rejection tag
	SalesPOCID      string
	Limit           int
	Offset          int
}

// Stats are the trivial dashboard counts.
type Stats struct {
	TotalPrograms  int
	ActivePrograms int
	ClosedPrograms int
	PipelineBudget float64
}

// UserRepository defines the persistence contract for users.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	ListByRole(ctx context.Context, roles ...Role) ([]User, error)
}

// Notification is a structured message for role-based or individual
// recipients. The notifier has no opinion on delivery medium.
type Notification struct {
	To        []string
	Subject   string
	Body      string
	ProgramID string
	Event     string
}

// Notifier dispatches notifications. Implementations must not let a
// delivery failure affect the transition that triggered it; the engine
// enqueues only after the transition has been committed.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// TransitionValidator checks that an event is a legal move from the
// current stage and returns the destination stage.
type TransitionValidator interface {
	Apply(ctx context.Context, current Stage, event Event) (Stage, error)
}

// FileCategory distinguishes document uploads from media uploads.
type FileCategory string

const (
	FileDocument FileCategory = "document"
	FileMedia    FileCategory = "media"
)

// FileRef is the stored reference to an uploaded blob. The engine only
// ever keeps the URL string on the program.
type FileRef struct {
	URL    string
	FileID string
}

// FileStore persists uploaded blobs and returns a reference.
type FileStore interface {
	Save(ctx context.Context, filename string, category FileCategory, content io.Reader, size int64) (FileRef, error)
}
