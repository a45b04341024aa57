package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/programflow/internal/adapter/filestore"
	"github.com/neomorfeo/programflow/internal/app"
	"github.com/neomorfeo/programflow/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// ProgramResponse is the API representation of a program.
type ProgramResponse struct {
	ID           string `json:"id" doc:"Unique identifier"`
	Code         string `json:"code" doc:"Human-readable business code"`
	CurrentStage int    `json:"current_stage" doc:"Lifecycle stage (1-5)"`
	Locked       bool   `json:"locked" doc:"True once archived"`

	SalesPOCID string `json:"sales_poc_id" doc:"Owning sales user"`
	OpsSPOCID  string `json:"ops_spoc_id,omitempty" doc:"Accepting ops user"`

	FinanceApprovalRequired bool `json:"finance_approval_required"`
	FinanceApprovalReceived bool `json:"finance_approval_received"`
	HandoverAcceptedByOps   bool `json:"handover_accepted_by_ops"`

	RejectionStatus        string `json:"rejection_status,omitempty" doc:"rejected_finance or rejected_ops"`
	FinanceRejectionReason string `json:"finance_rejection_reason,omitempty"`
	OpsRejectionReason     string `json:"ops_rejection_reason,omitempty"`
	RejectedBy             string `json:"rejected_by,omitempty"`
	RejectedAt             string `json:"rejected_at,omitempty"`
	ResubmissionCount      int    `json:"resubmission_count"`
	LastResubmittedAt      string `json:"last_resubmitted_at,omitempty"`

	Intake      Stage1Body `json:"intake"`
	Feasibility Stage2Body `json:"feasibility"`
	Delivery    Stage3Body `json:"delivery"`
	Closure     Stage4Body `json:"closure"`

	ClosedAt   string `json:"closed_at,omitempty"`
	ClosedBy   string `json:"closed_by,omitempty"`
	FinalNotes string `json:"final_notes,omitempty"`

	CreatedAt string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

// Stage1Body is the sales-intake payload.
type Stage1Body struct {
	ProgramName    string  `json:"program_name" doc:"Display name"`
	ProgramType    string  `json:"program_type,omitempty"`
	ProgramDates   string  `json:"program_dates,omitempty"`
	Location       string  `json:"location,omitempty"`
	MinPax         int     `json:"min_pax,omitempty" minimum:"0"`
	MaxPax         int     `json:"max_pax,omitempty" minimum:"0"`
	CompanyName    string  `json:"company_name,omitempty"`
	ClientPOCName  string  `json:"client_poc_name,omitempty"`
	ClientPOCPhone string  `json:"client_poc_phone,omitempty"`
	ClientPOCEmail string  `json:"client_poc_email,omitempty" format:"email"`
	Objectives     string  `json:"objectives,omitempty"`
	DeliveryBudget float64 `json:"delivery_budget,omitempty" minimum:"0"`
	BillingDetails string  `json:"billing_details,omitempty"`
	AgendaDocument string  `json:"agenda_document,omitempty" doc:"Uploaded file reference"`
}

// Stage2Body is the resource-blocking payload.
type Stage2Body struct {
	FacilitatorsBlocked string `json:"facilitators_blocked,omitempty"`
	HelperStaffBlocked  string `json:"helper_staff_blocked,omitempty"`
	TransportBlocked    string `json:"transport_blocked,omitempty"`
	LogisticsList       string `json:"logistics_list,omitempty"`
	LogisticsListLocked bool   `json:"logistics_list_locked,omitempty"`
	AllResourcesBlocked bool   `json:"all_resources_blocked,omitempty"`
	PrepComplete        bool   `json:"prep_complete,omitempty"`
}

// Stage3Body is the on-site delivery payload.
type Stage3Body struct {
	VenueReached           bool   `json:"venue_reached,omitempty"`
	ProgramCompleted       bool   `json:"program_completed,omitempty"`
	DeliveryNotes          string `json:"delivery_notes,omitempty"`
	TripExpenseSheet       string `json:"trip_expense_sheet,omitempty" doc:"Uploaded file reference"`
	PackingCheckDone       bool   `json:"packing_check_done,omitempty"`
	ActualParticipantCount int    `json:"actual_participant_count,omitempty" minimum:"0"`
}

// Stage4Body is the feedback and financial-closure payload.
type Stage4Body struct {
	ClientFeedback         string `json:"client_feedback,omitempty"`
	ZFDRating              *int   `json:"zfd_rating,omitempty" minimum:"1" maximum:"5" doc:"Zero-defect delivery score"`
	ZFDComments            string `json:"zfd_comments,omitempty"`
	ExpensesBillsSubmitted bool   `json:"expenses_bills_submitted,omitempty"`
	OpsDataManagerUpdated  bool   `json:"ops_data_manager_updated,omitempty"`
}

// TransitionResponse is the API representation of one audit-log entry.
type TransitionResponse struct {
	ID             string `json:"id"`
	ProgramID      string `json:"program_id"`
	FromStage      int    `json:"from_stage"`
	ToStage        int    `json:"to_stage"`
	TransitionedBy string `json:"transitioned_by"`
	TransitionedAt string `json:"transitioned_at"`
	ApprovalNotes  string `json:"approval_notes,omitempty"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeFormat)
}

func toProgramResponse(p domain.Program) ProgramResponse {
	return ProgramResponse{
		ID:           p.ID,
		Code:         p.Code,
		CurrentStage: int(p.CurrentStage),
		Locked:       p.Locked,
		SalesPOCID:   p.SalesPOCID,
		OpsSPOCID:    p.OpsSPOCID,

		FinanceApprovalRequired: p.FinanceApprovalRequired,
		FinanceApprovalReceived: p.FinanceApprovalReceived,
		HandoverAcceptedByOps:   p.HandoverAcceptedByOps,

		RejectionStatus:        string(p.RejectionStatus),
		FinanceRejectionReason: p.FinanceRejectionReason,
		OpsRejectionReason:     p.OpsRejectionReason,
		RejectedBy:             p.RejectedBy,
		RejectedAt:             formatTime(p.RejectedAt),
		ResubmissionCount:      p.ResubmissionCount,
		LastResubmittedAt:      formatTime(p.LastResubmittedAt),

		Intake: Stage1Body{
			ProgramName:    p.Intake.ProgramName,
			ProgramType:    p.Intake.ProgramType,
			ProgramDates:   p.Intake.ProgramDates,
			Location:       p.Intake.Location,
			MinPax:         p.Intake.MinPax,
			MaxPax:         p.Intake.MaxPax,
			CompanyName:    p.Intake.CompanyName,
			ClientPOCName:  p.Intake.ClientPOCName,
			ClientPOCPhone: p.Intake.ClientPOCPhone,
			ClientPOCEmail: p.Intake.ClientPOCEmail,
			Objectives:     p.Intake.Objectives,
			DeliveryBudget: p.Intake.DeliveryBudget,
			BillingDetails: p.Intake.BillingDetails,
			AgendaDocument: p.Intake.AgendaDocument,
		},
		Feasibility: Stage2Body{
			FacilitatorsBlocked: p.Feasibility.FacilitatorsBlocked,
			HelperStaffBlocked:  p.Feasibility.HelperStaffBlocked,
			TransportBlocked:    p.Feasibility.TransportBlocked,
			LogisticsList:       p.Feasibility.LogisticsList,
			LogisticsListLocked: p.Feasibility.LogisticsListLocked,
			AllResourcesBlocked: p.Feasibility.AllResourcesBlocked,
			PrepComplete:        p.Feasibility.PrepComplete,
		},
		Delivery: Stage3Body{
			VenueReached:           p.Delivery.VenueReached,
			ProgramCompleted:       p.Delivery.ProgramCompleted,
			DeliveryNotes:          p.Delivery.DeliveryNotes,
			TripExpenseSheet:       p.Delivery.TripExpenseSheet,
			PackingCheckDone:       p.Delivery.PackingCheckDone,
			ActualParticipantCount: p.Delivery.ActualParticipantCount,
		},
		Closure: Stage4Body{
			ClientFeedback:         p.Closure.ClientFeedback,
			ZFDRating:              p.Closure.ZFDRating,
			ZFDComments:            p.Closure.ZFDComments,
			ExpensesBillsSubmitted: p.Closure.ExpensesBillsSubmitted,
			OpsDataManagerUpdated:  p.Closure.OpsDataManagerUpdated,
		},

		ClosedAt:   formatTime(p.ClosedAt),
		ClosedBy:   p.ClosedBy,
		FinalNotes: p.FinalNotes,

		CreatedAt: p.CreatedAt.Format(timeFormat),
		UpdatedAt: p.UpdatedAt.Format(timeFormat),
	}
}

func (b Stage1Body) toDomain() domain.IntakeDetails {
	return domain.IntakeDetails{
		ProgramName:    b.ProgramName,
		ProgramType:    b.ProgramType,
		ProgramDates:   b.ProgramDates,
		Location:       b.Location,
		MinPax:         b.MinPax,
		MaxPax:         b.MaxPax,
		CompanyName:    b.CompanyName,
		ClientPOCName:  b.ClientPOCName,
		ClientPOCPhone: b.ClientPOCPhone,
		ClientPOCEmail: b.ClientPOCEmail,
		Objectives:     b.Objectives,
		DeliveryBudget: b.DeliveryBudget,
		BillingDetails: b.BillingDetails,
		AgendaDocument: b.AgendaDocument,
	}
}

func (b Stage2Body) toDomain() domain.FeasibilityDetails {
	return domain.FeasibilityDetails{
		FacilitatorsBlocked: b.FacilitatorsBlocked,
		HelperStaffBlocked:  b.HelperStaffBlocked,
		TransportBlocked:    b.TransportBlocked,
		LogisticsList:       b.LogisticsList,
		LogisticsListLocked: b.LogisticsListLocked,
		AllResourcesBlocked: b.AllResourcesBlocked,
		PrepComplete:        b.PrepComplete,
	}
}

func (b Stage3Body) toDomain() domain.DeliveryDetails {
	return domain.DeliveryDetails{
		VenueReached:           b.VenueReached,
		ProgramCompleted:       b.ProgramCompleted,
		DeliveryNotes:          b.DeliveryNotes,
		TripExpenseSheet:       b.TripExpenseSheet,
		PackingCheckDone:       b.PackingCheckDone,
		ActualParticipantCount: b.ActualParticipantCount,
	}
}

func (b Stage4Body) toDomain() domain.ClosureDetails {
	return domain.ClosureDetails{
		ClientFeedback:         b.ClientFeedback,
		ZFDRating:              b.ZFDRating,
		ZFDComments:            b.ZFDComments,
		ExpensesBillsSubmitted: b.ExpensesBillsSubmitted,
		OpsDataManagerUpdated:  b.OpsDataManagerUpdated,
	}
}

// ActorParam carries the caller identity resolved by the outer auth
// layer. Embedded in every input: reads and writes are both gated on
// a known actor.
type ActorParam struct {
	ActorID string `header:"X-Actor-Id" required:"true" doc:"Authenticated user id"`
}

// --- Inputs / Outputs ---

type CreateProgramInput struct {
	ActorParam
	Body Stage1Body
}

type ProgramOutput struct {
	Body ProgramResponse
}

type GetProgramInput struct {
	ActorParam
	ID string `path:"id" doc:"Program ID"`
}

type GetProgramByCodeInput struct {
	ActorParam
	Code string `path:"code" doc:"Program business code"`
}

type ListProgramsInput struct {
	ActorParam
	Stage  int    `query:"stage" required:"false" minimum:"0" maximum:"5" doc:"Filter by stage"`
	Sales  string `query:"sales_poc_id" required:"false" doc:"Filter by sales owner"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListProgramsOutput struct {
	Body []ProgramResponse
}

type UpdateStageInput[B any] struct {
	ActorParam
	ID   string `path:"id" doc:"Program ID"`
	Body B
}

type ProgramActionInput struct {
	ActorParam
	ID string `path:"id" doc:"Program ID"`
}

type ReasonInput struct {
	ActorParam
	ID   string `path:"id" doc:"Program ID"`
	Body struct {
		Reason string `json:"reason" doc:"Why the program is being rejected"`
	}
}

type AdvanceInput struct {
	ActorParam
	ID   string `path:"id" doc:"Program ID"`
	Body struct {
		Event string `json:"event" doc:"Lifecycle event to trigger" enum:"complete_prep,complete_delivery,close_program"`
	}
}

type ReopenInput struct {
	ActorParam
	ID   string `path:"id" doc:"Program ID"`
	Body struct {
		Justification string `json:"justification" doc:"Why the archived program must be reopened"`
	}
}

type TransitionsInput struct {
	ActorParam
	ID string `path:"id" doc:"Program ID"`
}

type StatsInput struct {
	ActorParam
}

type TransitionsOutput struct {
	Body []TransitionResponse
}

type PendingApprovalsInput struct {
	ActorParam
}

type StatsOutput struct {
	Body struct {
		TotalPrograms  int     `json:"total_programs"`
		ActivePrograms int     `json:"active_programs"`
		ClosedPrograms int     `json:"closed_programs"`
		PipelineBudget float64 `json:"pipeline_budget"`
	}
}

type UploadFileInput struct {
	ActorParam
	Filename string `query:"filename" required:"true" doc:"Original file name"`
	Category string `query:"category" required:"false" default:"document" enum:"document,media"`
	RawBody  []byte
}

type UploadFileOutput struct {
	Body struct {
		URL    string `json:"url"`
		FileID string `json:"file_id"`
	}
}

// Register adds all program API routes to the Huma API.
func Register(api huma.API, svc *app.ProgramService, files domain.FileStore) {
	resolve := func(ctx context.Context, actorID string) (domain.Actor, error) {
		actor, err := svc.ResolveActor(ctx, actorID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.Actor{}, huma.Error401Unauthorized("unknown actor")
			}
			return domain.Actor{}, toHumaError(err)
		}
		return actor, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "create-program",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs",
		Summary:     "Create a new program (Stage 1)",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *CreateProgramInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.CreateProgram(ctx, actor, input.Body.toDomain())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-program",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/{id}",
		Summary:     "Get a program by ID",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *GetProgramInput) (*ProgramOutput, error) {
		if _, err := resolve(ctx, input.ActorID); err != nil {
			return nil, err
		}
		program, err := svc.GetByID(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-program-by-code",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/code/{code}",
		Summary:     "Get a program by its business code",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *GetProgramByCodeInput) (*ProgramOutput, error) {
		if _, err := resolve(ctx, input.ActorID); err != nil {
			return nil, err
		}
		program, err := svc.GetByCode(ctx, input.Code)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-programs",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs",
		Summary:     "List programs",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *ListProgramsInput) (*ListProgramsOutput, error) {
		if _, err := resolve(ctx, input.ActorID); err != nil {
			return nil, err
		}
		filter := domain.ListFilter{
			SalesPOCID: input.Sales,
			Limit:      input.Limit,
			Offset:     input.Offset,
		}
		if input.Stage > 0 {
			s := domain.Stage(input.Stage)
			filter.Stage = &s
		}

		programs, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListProgramsOutput{Body: toProgramResponses(programs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage1",
		Method:      http.MethodPut,
		Path:        "/api/v1/programs/{id}/stage1",
		Summary:     "Save Stage 1 intake fields",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *UpdateStageInput[Stage1Body]) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.UpdateStage1(ctx, actor, input.ID, input.Body.toDomain())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage2",
		Method:      http.MethodPut,
		Path:        "/api/v1/programs/{id}/stage2",
		Summary:     "Save Stage 2 resource-blocking fields",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *UpdateStageInput[Stage2Body]) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.UpdateStage2(ctx, actor, input.ID, input.Body.toDomain())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage3",
		Method:      http.MethodPut,
		Path:        "/api/v1/programs/{id}/stage3",
		Summary:     "Save Stage 3 delivery fields",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *UpdateStageInput[Stage3Body]) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.UpdateStage3(ctx, actor, input.ID, input.Body.toDomain())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage4",
		Method:      http.MethodPut,
		Path:        "/api/v1/programs/{id}/stage4",
		Summary:     "Save Stage 4 closure fields",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *UpdateStageInput[Stage4Body]) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.UpdateStage4(ctx, actor, input.ID, input.Body.toDomain())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-finance",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/finance-approval",
		Summary:     "Approve the program budget (Finance)",
		Tags:        []string{"Approvals"},
	}, func(ctx context.Context, input *ProgramActionInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.ApproveFinance(ctx, actor, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-finance",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/finance-rejection",
		Summary:     "Reject the program budget (Finance)",
		Tags:        []string{"Approvals"},
	}, func(ctx context.Context, input *ReasonInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.RejectFinance(ctx, actor, input.ID, input.Body.Reason)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-handover",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/handover-acceptance",
		Summary:     "Accept the handover and move to Stage 2 (Ops)",
		Tags:        []string{"Approvals"},
	}, func(ctx context.Context, input *ProgramActionInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.AcceptHandover(ctx, actor, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-handover",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/handover-rejection",
		Summary:     "Reject the handover (Ops)",
		Tags:        []string{"Approvals"},
	}, func(ctx context.Context, input *ReasonInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.RejectHandover(ctx, actor, input.ID, input.Body.Reason)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-program",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/resubmission",
		Summary:     "Resubmit a rejected program (owner)",
		Tags:        []string{"Approvals"},
	}, func(ctx context.Context, input *ProgramActionInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.Resubmit(ctx, actor, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-program",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/events",
		Summary:     "Trigger a forward stage transition",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *AdvanceInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}

		var program domain.Program
		switch domain.Event(input.Body.Event) {
		case domain.EventCompletePrep:
			program, err = svc.MoveToStage3(ctx, actor, input.ID)
		case domain.EventCompleteDelivery:
			program, err = svc.MoveToStage4(ctx, actor, input.ID)
		case domain.EventCloseProgram:
			program, err = svc.MoveToStage5(ctx, actor, input.ID)
		default:
			return nil, huma.Error422UnprocessableEntity("unknown event")
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-program",
		Method:      http.MethodPost,
		Path:        "/api/v1/programs/{id}/reopen",
		Summary:     "Reopen an archived program (Admin)",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *ReopenInput) (*ProgramOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		program, err := svc.Reopen(ctx, actor, input.ID, input.Body.Justification)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProgramOutput{Body: toProgramResponse(program)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-transitions",
		Method:      http.MethodGet,
		Path:        "/api/v1/programs/{id}/transitions",
		Summary:     "Get the stage transition audit trail",
		Tags:        []string{"Programs"},
	}, func(ctx context.Context, input *TransitionsInput) (*TransitionsOutput, error) {
		if _, err := resolve(ctx, input.ActorID); err != nil {
			return nil, err
		}
		entries, err := svc.Transitions(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TransitionResponse, len(entries))
		for i, e := range entries {
			resp[i] = TransitionResponse{
				ID:             e.ID,
				ProgramID:      e.ProgramID,
				FromStage:      int(e.FromStage),
				ToStage:        int(e.ToStage),
				TransitionedBy: e.TransitionedBy,
				TransitionedAt: e.TransitionedAt.Format(timeFormat),
				ApprovalNotes:  e.ApprovalNotes,
			}
		}
		return &TransitionsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pending-approvals",
		Method:      http.MethodGet,
		Path:        "/api/v1/pending-approvals",
		Summary:     "List programs awaiting the caller's approval",
		Tags:        []string{"Approvals"},
	}, func(ctx context.Context, input *PendingApprovalsInput) (*ListProgramsOutput, error) {
		actor, err := resolve(ctx, input.ActorID)
		if err != nil {
			return nil, err
		}
		programs, err := svc.PendingApprovals(ctx, actor)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListProgramsOutput{Body: toProgramResponses(programs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Dashboard counts",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *StatsInput) (*StatsOutput, error) {
		if _, err := resolve(ctx, input.ActorID); err != nil {
			return nil, err
		}
		stats, err := svc.Stats(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &StatsOutput{}
		out.Body.TotalPrograms = stats.TotalPrograms
		out.Body.ActivePrograms = stats.ActivePrograms
		out.Body.ClosedPrograms = stats.ClosedPrograms
		out.Body.PipelineBudget = stats.PipelineBudget
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upload-file",
		Method:      http.MethodPost,
		Path:        "/api/v1/files",
		Summary:     "Upload a document or media file",
		Tags:        []string{"Files"},
	}, func(ctx context.Context, input *UploadFileInput) (*UploadFileOutput, error) {
		if _, err := resolve(ctx, input.ActorID); err != nil {
			return nil, err
		}
		ref, err := files.Save(ctx, input.Filename, domain.FileCategory(input.Category),
			bytes.NewReader(input.RawBody), int64(len(input.RawBody)))
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &UploadFileOutput{}
		out.Body.URL = ref.URL
		out.Body.FileID = ref.FileID
		return out, nil
	})
}

func toProgramResponses(programs []domain.Program) []ProgramResponse {
	resp := make([]ProgramResponse, len(programs))
	for i, p := range programs {
		resp[i] = toProgramResponse(p)
	}
	return resp
}

// toHumaError translates domain errors to Huma HTTP errors. Criteria
// failures carry every unmet criterion so the caller can render a
// complete checklist.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrProgramNotFound):
		return huma.Error404NotFound("program not found")
	case errors.Is(err, domain.ErrUserNotFound):
		return huma.Error404NotFound("user not found")
	case errors.Is(err, domain.ErrNotRejected):
		return huma.Error409Conflict("program is not rejected")
	case errors.Is(err, domain.ErrStaleProgram):
		return huma.Error409Conflict("program was modified concurrently, retry")
	}

	var authErr *domain.UnauthorizedError
	if errors.As(err, &authErr) {
		return huma.Error403Forbidden(authErr.Error())
	}

	var criteriaErr *domain.CriteriaError
	if errors.As(err, &criteriaErr) {
		details := make([]error, len(criteriaErr.Errors))
		for i, msg := range criteriaErr.Errors {
			details[i] = &huma.ErrorDetail{Message: msg}
		}
		return huma.Error422UnprocessableEntity("exit criteria not met", details...)
	}

	var inputErr *domain.InputError
	if errors.As(err, &inputErr) {
		return huma.Error422UnprocessableEntity(inputErr.Error())
	}

	var lockedErr *domain.LockedError
	if errors.As(err, &lockedErr) {
		return huma.Error409Conflict(lockedErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var codeErr *domain.CodeConflictError
	if errors.As(err, &codeErr) {
		return huma.Error409Conflict(codeErr.Error())
	}

	var typeErr *filestore.FileTypeError
	if errors.As(err, &typeErr) {
		return huma.Error422UnprocessableEntity(typeErr.Error())
	}

	var sizeErr *filestore.FileTooLargeError
	if errors.As(err, &sizeErr) {
		return huma.Error413RequestEntityTooLarge(sizeErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
