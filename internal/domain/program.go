package domain

import "time"

// Stage is one of the five sequential lifecycle phases of a program.
type Stage int

const (
	StageIntake      Stage = 1
	StageFeasibility Stage = 2
	StageDelivery    Stage = 3
	StageClosure     Stage = 4
	StageArchived    Stage = 5
)

// Event represents an action that triggers a stage transition.
type Event string

const (
	EventAcceptHandover   Event = "accept_handover"
	EventCompletePrep     Event = "complete_prep"
	EventCompleteDelivery Event = "complete_delivery"
	EventCloseProgram     Event = "close_program"
	EventReopen           Event = "reopen"
)

// Transition defines a valid stage change: an event moves a program from Src to Dst.
type Transition struct {
	Event Event
	Src   Stage
	Dst   Stage
}

// Transitions defines all valid stage changes in the program lifecycle.
// Stages never skip; the only backward edge is the admin reopen from 5 to 4.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventAcceptHandover, Src: StageIntake, Dst: StageFeasibility},
	{Event: EventCompletePrep, Src: StageFeasibility, Dst: StageDelivery},
	{Event: EventCompleteDelivery, Src: StageDelivery, Dst: StageClosure},
	{Event: EventCloseProgram, Src: StageClosure, Dst: StageArchived},
	{Event: EventReopen, Src: StageArchived, Dst: StageClosure},
}

// RejectionStatus marks which approver pool rejected a program, if any.
type RejectionStatus string

const (
	RejectionNone   RejectionStatus = ""
	RejectedFinance RejectionStatus = "rejected_finance"
	RejectedOps     RejectionStatus = "rejected_ops"
)

// IntakeDetails holds the Stage 1 sales-intake payload.
type IntakeDetails struct {
	ProgramName    string
	ProgramType    string
	ProgramDates   string
	Location       string
	MinPax         int
	MaxPax         int
	CompanyName    string
	ClientPOCName  string
	ClientPOCPhone string
	ClientPOCEmail string
	Objectives     string
	DeliveryBudget float64
	BillingDetails string
	AgendaDocument string // file reference, required for handover
}

// FeasibilityDetails holds the Stage 2 resource-blocking payload.
type FeasibilityDetails struct {
	FacilitatorsBlocked string
	HelperStaffBlocked  string
	TransportBlocked    string
	LogisticsList       string
	LogisticsListLocked bool
	AllResourcesBlocked bool
	PrepComplete        bool
}

// DeliveryDetails holds the Stage 3 on-site payload.
type DeliveryDetails struct {
	VenueReached           bool
	ProgramCompleted       bool
	DeliveryNotes          string
	TripExpenseSheet       string // file reference, mandatory before closure
	PackingCheckDone       bool
	ActualParticipantCount int
}

// ClosureDetails holds the Stage 4 feedback and financial-closure payload.
// ZFDRating is a pointer so "not yet rated" is distinguishable from zero.
type ClosureDetails struct {
	ClientFeedback         string
	ZFDRating              *int
	ZFDComments            string
	ExpensesBillsSubmitted bool
	OpsDataManagerUpdated  bool
}

// Program is the core domain entity: one corporate-event engagement
// tracked through its five-stage lifecycle.
type Program struct {
	ID   string
	Code string // human-readable business code, immutable once assigned

	CurrentStage Stage
	Locked       bool // true only while CurrentStage is StageArchived

	SalesPOCID string // set at creation, immutable
	OpsSPOCID  string // set exactly once, by the accepting Ops actor

	FinanceApprovalRequired bool
	FinanceApprovalReceived bool
	HandoverAcceptedByOps   bool

	RejectionStatus        RejectionStatus
	FinanceRejectionReason string
	OpsRejectionReason     string
	RejectedBy             string
	RejectedAt             *time.Time
	ResubmissionCount      int
	LastResubmittedAt      *time.Time

	Intake      IntakeDetails
	Feasibility FeasibilityDetails
	Delivery    DeliveryDetails
	Closure     ClosureDetails

	ClosedAt   *time.Time
	ClosedBy   string
	FinalNotes string // append-only; reopen adds a timestamped annotation

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProgram creates a program in Stage 1 owned by the given sales actor.
func NewProgram(id, code, salesPOCID string, intake IntakeDetails) Program {
	now := time.Now().UTC()
	return Program{
		ID:                      id,
		Code:                    code,
		CurrentStage:            StageIntake,
		SalesPOCID:              salesPOCID,
		FinanceApprovalRequired: true,
		Intake:                  intake,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

// Rejected reports whether the program currently carries a rejection.
func (p Program) Rejected() bool {
	return p.RejectionStatus != RejectionNone
}
