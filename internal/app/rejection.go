package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/programflow/internal/domain"
)

// RejectFinance records a Finance rejection. The approval flag is reset
// so the program cannot silently continue, the stage stays at 1, and
// the sales owner is notified with the reason.
func (s *ProgramService) RejectFinance(ctx context.Context, actor domain.Actor, id, reason string) (domain.Program, error) {
	if !actor.Allowed(domain.RoleFinance) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "reject budgets", Role: actor.Role}
	}
	reason, err := validReason(reason)
	if err != nil {
		return domain.Program{}, err
	}

	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}

	now := time.Now().UTC()
	p.RejectionStatus = domain.RejectedFinance
	p.FinanceRejectionReason = reason
	p.RejectedBy = actor.ID
	p.RejectedAt = &now
	p.FinanceApprovalReceived = false

	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("rejecting program: %w", err)
	}

	s.notifyUsers(ctx, p, "finance.rejected",
		fmt.Sprintf("Budget rejected for %s", p.Code),
		fmt.Sprintf("Finance rejected the budget for program %s (%s).\nReason: %s", p.Code, p.Intake.ProgramName, reason),
		[]string{p.SalesPOCID})

	return p, nil
}

// RejectHandover records an Ops rejection of the handover, resetting
// the acceptance flag.
func (s *ProgramService) RejectHandover(ctx context.Context, actor domain.Actor, id, reason string) (domain.Program, error) {
	if !actor.Allowed(domain.RoleOps) {
		return domain.Program{}, &domain.UnauthorizedError{Action: "reject handovers", Role: actor.Role}
	}
	reason, err := validReason(reason)
	if err != nil {
		return domain.Program{}, err
	}

	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}

	now := time.Now().UTC()
	p.RejectionStatus = domain.RejectedOps
	p.OpsRejectionReason = reason
	p.RejectedBy = actor.ID
	p.RejectedAt = &now
	p.HandoverAcceptedByOps = false

	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("rejecting handover: %w", err)
	}

	s.notifyUsers(ctx, p, "handover.rejected",
		fmt.Sprintf("Handover rejected for %s", p.Code),
		fmt.Sprintf("Ops rejected the handover for program %s (%s).\nReason: %s", p.Code, p.Intake.ProgramName, reason),
		[]string{p.SalesPOCID})

	return p, nil
}

// Resubmit clears an active rejection and re-notifies the pool that
// rejected. Only the program's sales owner or an admin may resubmit,
// and only while a rejection is active; the second of two back-to-back
// resubmits fails, which guards against duplicate notifications.
func (s *ProgramService) Resubmit(ctx context.Context, actor domain.Actor, id string) (domain.Program, error) {
	p, err := s.loadUnlocked(ctx, id)
	if err != nil {
		return domain.Program{}, err
	}
	if p.SalesPOCID != actor.ID && actor.Role != domain.RoleAdmin {
		return domain.Program{}, &domain.UnauthorizedError{Action: "resubmit this program", Role: actor.Role}
	}
	if !p.Rejected() {
		return domain.Program{}, domain.ErrNotRejected
	}

	rejectedPool := domain.RoleFinance
	if p.RejectionStatus == domain.RejectedOps {
		rejectedPool = domain.RoleOps
	}

	now := time.Now().UTC()
	p.RejectionStatus = domain.RejectionNone
	p.RejectedBy = ""
	p.RejectedAt = nil
	p.ResubmissionCount++
	p.LastResubmittedAt = &now

	if err := s.programs.Update(ctx, p); err != nil {
		return domain.Program{}, fmt.Errorf("resubmitting program: %w", err)
	}

	s.notifyUsers(ctx, p, "program.resubmitted",
		fmt.Sprintf("Program %s resubmitted", p.Code),
		fmt.Sprintf("Program %s (%s) was resubmitted for review (attempt %d).", p.Code, p.Intake.ProgramName, p.ResubmissionCount),
		nil, rejectedPool)

	return p, nil
}

// PendingApprovals is a read-only queue projection, recomputed on every
// call. Finance sees stage-1 programs awaiting budget approval; Ops
// sees finance-approved programs awaiting handover acceptance. Each
// queue hides programs that pool itself rejected.
func (s *ProgramService) PendingApprovals(ctx context.Context, actor domain.Actor) ([]domain.Program, error) {
	stage := domain.StageIntake
	notApproved, approved := false, true

	switch {
	case actor.Allowed(domain.RoleFinance):
		return s.programs.List(ctx, domain.ListFilter{
			Stage:           &stage,
			FinanceApproved: &notApproved,
			NotRejectedBy:   domain.RejectedFinance,
		})
	case actor.Role == domain.RoleOps:
		return s.programs.List(ctx, domain.ListFilter{
			Stage:           &stage,
			FinanceApproved: &approved,
			OpsAccepted:     &notApproved,
			NotRejectedBy:   domain.RejectedOps,
		})
	default:
		return nil, nil
	}
}

func validReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < domain.MinRejectionReasonLen {
		return "", &domain.InputError{
			Field:  "reason",
			Reason: fmt.Sprintf("minimum %d characters", domain.MinRejectionReasonLen),
		}
	}
	return reason, nil
}
