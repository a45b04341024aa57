package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neomorfeo/programflow/internal/domain"
)

// ProgramService orchestrates the program lifecycle: stage transitions,
// approvals, rejection/resubmission, and the audit trail. Every
// operation follows the same protocol: authorize, load, validate,
// mutate and log atomically, then notify after commit.
type ProgramService struct {
	programs  domain.ProgramRepository
	users     domain.UserRepository
	notifier  domain.Notifier
	validator domain.TransitionValidator
	log       *slog.Logger
}

// NewProgramService creates a service with the given adapters.
func NewProgramService(programs domain.ProgramRepository, users domain.UserRepository, notifier domain.Notifier, validator domain.TransitionValidator) *ProgramService {
	return &ProgramService{
		programs:  programs,
		users:     users,
		notifier:  notifier,
		validator: validator,
		log:       slog.Default(),
	}
}

// ResolveActor maps a caller id to an Actor. Credential checking is the
// job of the outer auth layer; this only resolves the role.
func (s *ProgramService) ResolveActor(ctx context.Context, userID string) (domain.Actor, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{ID: u.ID, Role: u.Role}, nil
}

// CreateProgram registers a new Stage 1 program owned by the calling
// sales actor and notifies the Finance pool that approval is wanted.
func (s *ProgramService) CreateProgram(ctx context.Context, actor domain.Actor, intake domain.IntakeDetails) (domain.Program, error) {
	if !actor.Allowed(domain.RoleSales) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "create programs", Role: actor.Role}
	}
	if strings.TrimSpace(intake.ProgramName) == "" {
		return domain.Program{}, &domain.InputError{Field: "programName", Reason: "required"}
	}

	id, err := generateID()
	if err != nil {
		return domain.Program{}, fmt.Errorf("generating program id: %w", err)
	}

	program := domain.NewProgram(id, newProgramCode(), actor.ID, intake)

	if err := s.programs.Create(ctx, program); err != nil {
		return domain.Program{}, fmt.Errorf("creating program: %w", err)
	}

	s.notifyUsers(ctx, program, "program.created",
		fmt.Sprintf("New program %s: %s", program.Code, intake.ProgramName),
		fmt.Sprintf("Program %s (%s) was created and awaits finance approval. Budget: %.2f", program.Code, intake.ProgramName, intake.DeliveryBudget),
		[]string{actor.ID}, domain.RoleFinance)

	return program, nil
}

// GetByID returns a program by its unique identifier.
func (s *ProgramService) GetByID(ctx context.Context, id string) (domain.Program, error) {
	return s.programs.GetByID(ctx, id)
}

// GetByCode returns a program by its human-readable business code.
func (s *ProgramService) GetByCode(ctx context.Context, code string) (domain.Program, error) {
	return s.programs.GetByCode(ctx, code)
}

// List returns programs matching the given filter.
func (s *ProgramService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Program, error) {
	return s.programs.List(ctx, filter)
}

// Transitions returns the immutable audit trail for a program.
func (s *ProgramService) Transitions(ctx context.Context, programID string) ([]domain.StageTransition, error) {
	if _, err := s.programs.GetByID(ctx, programID); err != nil {
		return nil, err
	}
	return s.programs.Transitions(ctx, programID)
}

// Stats returns the trivial dashboard counts.
func (s *ProgramService) Stats(ctx context.Context) (domain.Stats, error) {
	return s.programs.Stats(ctx)
}

// loadUnlocked fetches a program and refuses mutation while archived.
func (s *ProgramService) loadUnlocked(ctx context.Context, id string) (domain.Program, error) {
	p, err := s.programs.GetByID(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	if p.Locked {
		return domain.Program{}, &domain.LockedError{ID: p.ID}
	}
	return p, nil
}

// UpdateStage1 saves the sales-intake fields. Field saves never touch
// the current stage.
func (s *ProgramService) UpdateStage1(ctx context.Context, actor domain.Actor, id string, intake domain.IntakeDetails) (domain.Program, error) {
	if !actor.Allowed(domain.RoleSales) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "edit intake details", Role: actor.Role}
	}
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	p.Intake = intake
	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("updating program: %w", err)
	}
	return p, nil
}

// UpdateStage2 saves the resource-blocking fields.
func (s *ProgramService) UpdateStage2(ctx context.Context, actor domain.Actor, id string, details domain.FeasibilityDetails) (domain.Program, error) {
	if !actor.Allowed(domain.RoleOps) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "edit feasibility details", Role: actor.Role}
	}
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	p.Feasibility = details
	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("updating program: %w", err)
	}
	return p, nil
}

// UpdateStage3 saves the on-site delivery fields.
func (s *ProgramService) UpdateStage3(ctx context.Context, actor domain.Actor, id string, details domain.DeliveryDetails) (domain.Program, error) {
	if !actor.Allowed(domain.RoleOps) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "edit delivery details", Role: actor.Role}
	}
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	p.Delivery = details
	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("updating program: %w", err)
	}
	return p, nil
}

// UpdateStage4 saves the feedback and financial-closure fields.
func (s *ProgramService) UpdateStage4(ctx context.Context, actor domain.Actor, id string, details domain.ClosureDetails) (domain.Program, error) {
	if !actor.Allowed(domain.RoleOps) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "edit closure details", Role: actor.Role}
	}
	if details.ZFDRating != nil && (*details.ZFDRating < domain.MinZFDRating || *details.ZFDRating > domain.MaxZFDRating) {
		return domain.Program{}, &domain.InputError{
			Field:  "zfdRating",
			Reason: fmt.Sprintf("must be between %d and %d", domain.MinZFDRating, domain.MaxZFDRating),
		}
	}
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	p.Closure = details
	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("updating program: %w", err)
	}
	return p, nil
}

// ApproveFinance marks the budget as approved. It is a sub-operation of
// Stage 1, not a stage change.
func (s *ProgramService) ApproveFinance(ctx context.Context, actor domain.Actor, id string) (domain.Program, error) {
	if !actor.Allowed(domain.RoleFinance) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "approve budgets", Role: actor.Role}
	}
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	p.FinanceApprovalReceived = true
	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("updating program: %w", err)
	}

	s.notifyUsers(ctx, p, "finance.approved",
		fmt.Sprintf("Budget approved for %s", p.Code),
		fmt.Sprintf("Finance approved the budget for program %s (%s). Ops can now accept the handover.", p.Code, p.Intake.ProgramName),
		[]string{p.SalesPOCID}, domain.RoleOps)

	return p, nil
}

// AcceptHandover assigns the accepting Ops actor as SPOC, marks the
// handover accepted, and moves the program to Stage 2 as one atomic
// operation. If the exit criteria fail against the prospective state,
// nothing is persisted.
func (s *ProgramService) AcceptHandover(ctx context.Context, actor domain.Actor, id string) (domain.Program, error) {
	if !actor.Allowed(domain.RoleOps) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "accept handovers", Role: actor.Role}
	}
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}

	from := p.CurrentStage
	to, err := s.validator.Apply(ctx, from, domain.EventAcceptHandover)
	if err != nil {
		return domain.Program{}, err
	}

	// Evaluate the criteria against the state the acceptance would
	// produce, so a failed handover leaves no partial flags behind.
	p.OpsSPOCID = actor.ID
	p.HandoverAcceptedByOps = true
	if res := domain.ExitStage1(p); !res.Valid {
		return domain.Program{}, &domain.CriteriaError{From: from, To: to, Errors: res.Errors}
	}

	p.CurrentStage = to
	entry, err := s.newTransition(p.ID, from, to, actor.ID, "Handover accepted.")
	if err != nil {
		return domain.Program{}, err
	}
	if err := s.programs.UpdateWithTransition(ctx, p, from, entry); err != nil {
		return domain.Program{}, fmt.Errorf("accepting handover: %w", err)
	}

	s.notifyUsers(ctx, p, "handover.accepted",
		fmt.Sprintf("Handover accepted for %s", p.Code),
		fmt.Sprintf("Ops accepted program %s (%s). It is now in feasibility.", p.Code, p.Intake.ProgramName),
		[]string{p.SalesPOCID, p.OpsSPOCID})

	return p, nil
}

// MoveToStage3 advances feasibility to delivery.
func (s *ProgramService) MoveToStage3(ctx context.Context, actor domain.Actor, id string) (domain.Program, error) {
	return s.advance(ctx, actor, id, domain.EventCompletePrep,
		"Stage 2 complete. All resources blocked, prep done.")
}

// MoveToStage4 advances delivery to closure.
func (s *ProgramService) MoveToStage4(ctx context.Context, actor domain.Actor, id string) (domain.Program, error) {
	return s.advance(ctx, actor, id, domain.EventCompleteDelivery,
		"Delivery complete. Trip expense sheet submitted.")
}

// MoveToStage5 closes the program: it archives, locks, and stamps the
// closure fields.
func (s *ProgramService) MoveToStage5(ctx context.Context, actor domain.Actor, id string) (domain.Program, error) {
	return s.advance(ctx, actor, id, domain.EventCloseProgram, "")
}

// advance runs the shared transition protocol for the Ops-gated forward
// boundaries (2→3, 3→4, 4→5).
func (s *ProgramService) advance(ctx context.Context, actor domain.Actor, id string, event domain.Event, notes string) (domain.Program, error) {
	if !actor.Allowed(domain.RoleOps) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "advance programs", Role: actor.Role}
	}
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}

	from := p.CurrentStage
	to, err := s.validator.Apply(ctx, from, event)
	if err != nil {
		return domain.Program{}, err
	}

	if res := domain.ExitCriteria(p); !res.Valid {
		return domain.Program{}, &domain.CriteriaError{From: from, To: to, Errors: res.Errors}
	}

	p.CurrentStage = to
	if to == domain.StageArchived {
		now := time.Now().UTC()
		p.Locked = true
		p.ClosedAt = &now
		p.ClosedBy = actor.ID
		if p.Closure.ZFDRating != nil {
			notes = fmt.Sprintf("Program closed. ZFD rating: %d/%d", *p.Closure.ZFDRating, domain.MaxZFDRating)
		}
	}

	entry, err := s.newTransition(p.ID, from, to, actor.ID, notes)
	if err != nil {
		return domain.Program{}, err
	}
	if err := s.programs.UpdateWithTransition(ctx, p, from, entry); err != nil {
		return domain.Program{}, fmt.Errorf("advancing program: %w", err)
	}

	if to == domain.StageArchived {
		s.notifyUsers(ctx, p, "program.closed",
			fmt.Sprintf("Program %s closed", p.Code),
			fmt.Sprintf("Program %s (%s) has been closed and archived.", p.Code, p.Intake.ProgramName),
			[]string{p.SalesPOCID, p.OpsSPOCID}, domain.RoleFinance)
	} else {
		s.notifyUsers(ctx, p, "stage.completed",
			fmt.Sprintf("Program %s moved to stage %d", p.Code, to),
			fmt.Sprintf("Program %s (%s) completed stage %d and is now in stage %d.", p.Code, p.Intake.ProgramName, from, to),
			[]string{p.OpsSPOCID})
	}

	return p, nil
}

// Reopen returns an archived program to Stage 4. Admin only; the
// justification is appended to the final notes, never overwriting them.
func (s *ProgramService) Reopen(ctx context.Context, actor domain.Actor, id, justification string) (domain.Program, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.Program{}, &domain.UnauthorizedError{Action: "reopen archived programs", Role: actor.Role}
	}
	if len(strings.TrimSpace(justification)) < domain.MinJustificationLen {
		return domain.Program{}, &domain.InputError{
			Field:  "justification",
			Reason: fmt.Sprintf("minimum %d characters", domain.MinJustificationLen),
		}
	}

	p, err := s.programs.GetByID(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}

	from := p.CurrentStage
	to, err := s.validator.Apply(ctx, from, domain.EventReopen)
	if err != nil {
		return domain.Program{}, err
	}

	annotation := fmt.Sprintf("[REOPENED by %s on %s]\nReason: %s",
		actor.ID, time.Now().UTC().Format(time.RFC3339), justification)
	if p.FinalNotes != "" {
		p.FinalNotes += "\n\n" + annotation
	} else {
		p.FinalNotes = annotation
	}

	p.CurrentStage = to
	p.Locked = false

	entry, err := s.newTransition(p.ID, from, to, actor.ID,
		"Program reopened by admin. Justification: "+justification)
	if err != nil {
		return domain.Program{}, err
	}
	if err := s.programs.UpdateWithTransition(ctx, p, from, entry); err != nil {
		return domain.Program{}, fmt.Errorf("reopening program: %w", err)
	}

	s.notifyUsers(ctx, p, "program.reopened",
		fmt.Sprintf("Program %s reopened", p.Code),
		fmt.Sprintf("Program %s (%s) was reopened by an administrator.\nReason: %s", p.Code, p.Intake.ProgramName, justification),
		[]string{p.SalesPOCID, p.OpsSPOCID})

	return p, nil
}

func (s *ProgramService) newTransition(programID string, from, to domain.Stage, actorID, notes string) (domain.StageTransition, error) {
	id, err := generateID()
	if err != nil {
		return domain.StageTransition{}, fmt.Errorf("generating transition id: %w", err)
	}
	return domain.StageTransition{
		ID:             id,
		ProgramID:      programID,
		FromStage:      from,
		ToStage:        to,
		TransitionedBy: actorID,
		TransitionedAt: time.Now().UTC(),
		ApprovalNotes:  notes,
	}, nil
}

// notifyUsers resolves recipients (explicit user ids plus whole role
// pools) and dispatches a notification. Delivery problems are logged
// and swallowed: a committed transition never depends on them.
func (s *ProgramService) notifyUsers(ctx context.Context, p domain.Program, event, subject, body string, userIDs []string, pools ...domain.Role) {
	seen := make(map[string]bool)
	var to []string

	add := func(email string) {
		if email != "" && !seen[email] {
			seen[email] = true
			to = append(to, email)
		}
	}

	for _, uid := range userIDs {
		if uid == "" {
			continue
		}
		u, err := s.users.GetByID(ctx, uid)
		if err != nil {
			s.log.WarnContext(ctx, "notification recipient lookup failed",
				"user_id", uid, "event", event, "error", err)
			continue
		}
		add(u.Email)
	}

	if len(pools) > 0 {
		pools = append(pools, domain.RoleAdmin)
		users, err := s.users.ListByRole(ctx, pools...)
		if err != nil {
			s.log.WarnContext(ctx, "notification pool lookup failed",
				"event", event, "error", err)
		}
		for _, u := range users {
			add(u.Email)
		}
	}

	if len(to) == 0 {
		return
	}

	err := s.notifier.Notify(ctx, domain.Notification{
		To:        to,
		Subject:   subject,
		Body:      body,
		ProgramID: p.ID,
		Event:     event,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "notification dispatch failed",
			"program_id", p.ID, "event", event, "error", err)
	}
}
