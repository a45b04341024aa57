package domain

import (
	"fmt"
	"strings"
)

// Business thresholds. Kept as named constants so the numbers live in
// exactly one place.
const (
	MinRejectionReasonLen = 10
	MinJustificationLen   = 10
	MinZFDCommentsLen     = 10
	MinZFDRating          = 1
	MaxZFDRating          = 5
	LowZFDThreshold       = 3 // comments become mandatory at or below this rating
)

// Result is the outcome of an exit-criteria check. Errors lists every
// violated criterion, not just the first, so callers can surface a
// complete checklist.
type Result struct {
	Valid  bool
	Errors []string
}

func resultOf(errs []string) Result {
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ExitStage1 checks the Stage 1 → 2 handover criteria: Ops SPOC
// assigned, finance approval received (when required), handover
// accepted by Ops, and agenda document uploaded.
func ExitStage1(p Program) Result {
	var errs []string
	if p.OpsSPOCID == "" {
		errs = append(errs, "Ops SPOC must be assigned before handover")
	}
	if p.FinanceApprovalRequired && !p.FinanceApprovalReceived {
		errs = append(errs, "Finance approval required before handover")
	}
	if !p.HandoverAcceptedByOps {
		errs = append(errs, "Ops team must accept the program before handover")
	}
	if p.Intake.AgendaDocument == "" {
		errs = append(errs, "Agenda document must be uploaded before handover")
	}
	return resultOf(errs)
}

// ExitStage2 checks the Stage 2 → 3 criteria: all resources blocked,
// logistics list locked, prep complete, and at least one facilitator
// named.
func ExitStage2(p Program) Result {
	var errs []string
	if !p.Feasibility.AllResourcesBlocked {
		errs = append(errs, "All resources must be blocked before moving to delivery")
	}
	if !p.Feasibility.LogisticsListLocked {
		errs = append(errs, "Logistics list must be locked")
	}
	if !p.Feasibility.PrepComplete {
		errs = append(errs, "Preparation must be marked as complete")
	}
	if strings.TrimSpace(p.Feasibility.FacilitatorsBlocked) == "" {
		errs = append(errs, "At least one facilitator must be assigned and blocked")
	}
	return resultOf(errs)
}

// ExitStage3 checks the Stage 3 → 4 criteria: trip expense sheet
// uploaded, packing checklist done, program completed.
func ExitStage3(p Program) Result {
	var errs []string
	if p.Delivery.TripExpenseSheet == "" {
		errs = append(errs, "Trip expense sheet must be uploaded before closing delivery")
	}
	if !p.Delivery.PackingCheckDone {
		errs = append(errs, "Packing checklist must be marked as complete")
	}
	if !p.Delivery.ProgramCompleted {
		errs = append(errs, "Program must be marked as completed")
	}
	return resultOf(errs)
}

// ExitStage4 checks the Stage 4 → 5 closure criteria: ZFD rating in
// range, comments when the rating is low, expenses submitted, and ops
// data manager updated.
func ExitStage4(p Program) Result {
	var errs []string
	switch rating := p.Closure.ZFDRating; {
	case rating == nil:
		errs = append(errs, fmt.Sprintf("ZFD rating is required (%d-%d)", MinZFDRating, MaxZFDRating))
	case *rating < MinZFDRating || *rating > MaxZFDRating:
		errs = append(errs, fmt.Sprintf("ZFD rating must be between %d and %d", MinZFDRating, MaxZFDRating))
	case *rating <= LowZFDThreshold && len(p.Closure.ZFDComments) < MinZFDCommentsLen:
		errs = append(errs, fmt.Sprintf("Comments mandatory for ratings <=%d (minimum %d characters)", LowZFDThreshold, MinZFDCommentsLen))
	}
	if !p.Closure.ExpensesBillsSubmitted {
		errs = append(errs, "Expenses and bills must be submitted")
	}
	if !p.Closure.OpsDataManagerUpdated {
		errs = append(errs, "Ops data manager must be updated")
	}
	return resultOf(errs)
}

// ExitCriteria dispatches to the rule set for the program's current
// stage. Stage 5 has no forward exit.
func ExitCriteria(p Program) Result {
	switch p.CurrentStage {
	case StageIntake:
		return ExitStage1(p)
	case StageFeasibility:
		return ExitStage2(p)
	case StageDelivery:
		return ExitStage3(p)
	case StageClosure:
		return ExitStage4(p)
	default:
		return Result{Valid: false, Errors: []string{"program is archived"}}
	}
}
