package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/programflow/internal/domain"
)

// Compile-time check: ProgramRepository implements domain.ProgramRepository.
var _ domain.ProgramRepository = (*ProgramRepository)(nil)

// ProgramRepository implements domain.ProgramRepository using SQLite.
type ProgramRepository struct {
	db *sql.DB
}

// programColumns is the canonical column order shared by the insert,
// select, and scan code below. Keep them in sync.
const programColumns = `id, code, current_stage, locked, sales_poc_id, ops_spoc_id,
	finance_approval_required, finance_approval_received, handover_accepted_by_ops,
	rejection_status, finance_rejection_reason, ops_rejection_reason,
	rejected_by, rejected_at, resubmission_count, last_resubmitted_at,
	program_name, program_type, program_dates, location, min_pax, max_pax,
	company_name, client_poc_name, client_poc_phone, client_poc_email,
	objectives, delivery_budget, billing_details, agenda_document,
	facilitators_blocked, helper_staff_blocked, transport_blocked,
	logistics_list, logistics_list_locked, all_resources_blocked, prep_complete,
	venue_reached, program_completed, delivery_notes, trip_expense_sheet,
	packing_check_done, actual_participant_count,
	client_feedback, zfd_rating, zfd_comments, expenses_bills_submitted, ops_data_manager_updated,
	closed_at, closed_by, final_notes, created_at, updated_at`

// fieldSet is the SET clause for plain field saves: everything except
// the immutable identity and ownership columns (id, code, sales_poc_id,
// created_at) and the engine-owned lifecycle columns (current_stage,
// locked). The lifecycle columns change only through
// UpdateWithTransition so a field save holding a stale snapshot can
// never rewind a committed transition.
const fieldSet = `ops_spoc_id = ?,
	finance_approval_required = ?, finance_approval_received = ?, handover_accepted_by_ops = ?,
	rejection_status = ?, finance_rejection_reason = ?, ops_rejection_reason = ?,
	rejected_by = ?, rejected_at = ?, resubmission_count = ?, last_resubmitted_at = ?,
	program_name = ?, program_type = ?, program_dates = ?, location = ?, min_pax = ?, max_pax = ?,
	company_name = ?, client_poc_name = ?, client_poc_phone = ?, client_poc_email = ?,
	objectives = ?, delivery_budget = ?, billing_details = ?, agenda_document = ?,
	facilitators_blocked = ?, helper_staff_blocked = ?, transport_blocked = ?,
	logistics_list = ?, logistics_list_locked = ?, all_resources_blocked = ?, prep_complete = ?,
	venue_reached = ?, program_completed = ?, delivery_notes = ?, trip_expense_sheet = ?,
	packing_check_done = ?, actual_participant_count = ?,
	client_feedback = ?, zfd_rating = ?, zfd_comments = ?, expenses_bills_submitted = ?, ops_data_manager_updated = ?,
	closed_at = ?, closed_by = ?, final_notes = ?, updated_at = ?`

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// fieldArgs returns the argument list matching fieldSet.
func fieldArgs(p domain.Program, updatedAt time.Time) []any {
	return []any{
		p.OpsSPOCID,
		p.FinanceApprovalRequired, p.FinanceApprovalReceived, p.HandoverAcceptedByOps,
		string(p.RejectionStatus), p.FinanceRejectionReason, p.OpsRejectionReason,
		p.RejectedBy, nullTime(p.RejectedAt), p.ResubmissionCount, nullTime(p.LastResubmittedAt),
		p.Intake.ProgramName, p.Intake.ProgramType, p.Intake.ProgramDates, p.Intake.Location,
		p.Intake.MinPax, p.Intake.MaxPax,
		p.Intake.CompanyName, p.Intake.ClientPOCName, p.Intake.ClientPOCPhone, p.Intake.ClientPOCEmail,
		p.Intake.Objectives, p.Intake.DeliveryBudget, p.Intake.BillingDetails, p.Intake.AgendaDocument,
		p.Feasibility.FacilitatorsBlocked, p.Feasibility.HelperStaffBlocked, p.Feasibility.TransportBlocked,
		p.Feasibility.LogisticsList, p.Feasibility.LogisticsListLocked, p.Feasibility.AllResourcesBlocked, p.Feasibility.PrepComplete,
		p.Delivery.VenueReached, p.Delivery.ProgramCompleted, p.Delivery.DeliveryNotes, p.Delivery.TripExpenseSheet,
		p.Delivery.PackingCheckDone, p.Delivery.ActualParticipantCount,
		p.Closure.ClientFeedback, nullInt(p.Closure.ZFDRating), p.Closure.ZFDComments,
		p.Closure.ExpensesBillsSubmitted, p.Closure.OpsDataManagerUpdated,
		nullTime(p.ClosedAt), p.ClosedBy, p.FinalNotes, updatedAt.UTC().Format(timeFormat),
	}
}

func (r *ProgramRepository) Create(ctx context.Context, p domain.Program) error {
	args := []any{
		p.ID, p.Code, int(p.CurrentStage), p.Locked, p.SalesPOCID, p.OpsSPOCID,
		p.FinanceApprovalRequired, p.FinanceApprovalReceived, p.HandoverAcceptedByOps,
		string(p.RejectionStatus), p.FinanceRejectionReason, p.OpsRejectionReason,
		p.RejectedBy, nullTime(p.RejectedAt), p.ResubmissionCount, nullTime(p.LastResubmittedAt),
		p.Intake.ProgramName, p.Intake.ProgramType, p.Intake.ProgramDates, p.Intake.Location,
		p.Intake.MinPax, p.Intake.MaxPax,
		p.Intake.CompanyName, p.Intake.ClientPOCName, p.Intake.ClientPOCPhone, p.Intake.ClientPOCEmail,
		p.Intake.Objectives, p.Intake.DeliveryBudget, p.Intake.BillingDetails, p.Intake.AgendaDocument,
		p.Feasibility.FacilitatorsBlocked, p.Feasibility.HelperStaffBlocked, p.Feasibility.TransportBlocked,
		p.Feasibility.LogisticsList, p.Feasibility.LogisticsListLocked, p.Feasibility.AllResourcesBlocked, p.Feasibility.PrepComplete,
		p.Delivery.VenueReached, p.Delivery.ProgramCompleted, p.Delivery.DeliveryNotes, p.Delivery.TripExpenseSheet,
		p.Delivery.PackingCheckDone, p.Delivery.ActualParticipantCount,
		p.Closure.ClientFeedback, nullInt(p.Closure.ZFDRating), p.Closure.ZFDComments,
		p.Closure.ExpensesBillsSubmitted, p.Closure.OpsDataManagerUpdated,
		nullTime(p.ClosedAt), p.ClosedBy, p.FinalNotes,
		p.CreatedAt.UTC().Format(timeFormat), p.UpdatedAt.UTC().Format(timeFormat),
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO programs (`+programColumns+`) VALUES (`+placeholders+`)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.CodeConflictError{Code: p.Code}
		}
		return fmt.Errorf("inserting program: %w", err)
	}
	return nil
}

func (r *ProgramRepository) GetByID(ctx context.Context, id string) (domain.Program, error) {
	return scanProgram(r.db.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE id = ?`, id))
}

func (r *ProgramRepository) GetByCode(ctx context.Context, code string) (domain.Program, error) {
	return scanProgram(r.db.QueryRowContext(ctx,
		`SELECT `+programColumns+` FROM programs WHERE code = ?`, code))
}

func (r *ProgramRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs`
	var conds []string
	var args []any

	if filter.Stage != nil {
		conds = append(conds, `current_stage = ?`)
		args = append(args, int(*filter.Stage))
	}
	if filter.FinanceApproved != nil {
		conds = append(conds, `finance_approval_received = ?`)
		args = append(args, *filter.FinanceApproved)
	}
	if filter.OpsAccepted != nil {
		conds = append(conds, `handover_accepted_by_ops = ?`)
		args = append(args, *filter.OpsAccepted)
	}
	if filter.NotRejectedBy != domain.RejectionNone {
		conds = append(conds, `rejection_status <> ?`)
		args = append(args, string(filter.NotRejectedBy))
	}
	if filter.SalesPOCID != "" {
		conds = append(conds, `sales_poc_id = ?`)
		args = append(args, filter.SalesPOCID)
	}

	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var programs []domain.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}

	return programs, rows.Err()
}

func (r *ProgramRepository) Update(ctx context.Context, p domain.Program) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE programs SET `+fieldSet+` WHERE id = ?`,
		append(fieldArgs(p, time.Now()), p.ID)...)
	if err != nil {
		return fmt.Errorf("updating program: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrProgramNotFound
	}

	return nil
}

// UpdateWithTransition persists the program and appends exactly one
// transition record in a single transaction. The update is conditional
// on the stored stage still matching fromStage: if a concurrent caller
// already advanced the program, nothing is written and ErrStaleProgram
// is returned.
func (r *ProgramRepository) UpdateWithTransition(ctx context.Context, p domain.Program, fromStage domain.Stage, entry domain.StageTransition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	args := append([]any{int(p.CurrentStage), p.Locked}, fieldArgs(p, time.Now())...)
	result, err := tx.ExecContext(ctx,
		`UPDATE programs SET current_stage = ?, locked = ?, `+fieldSet+` WHERE id = ? AND current_stage = ?`,
		append(args, p.ID, int(fromStage))...)
	if err != nil {
		return fmt.Errorf("updating program: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM programs WHERE id = ?`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking program existence: %w", err)
		}
		if exists == 0 {
			return domain.ErrProgramNotFound
		}
		return domain.ErrStaleProgram
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO stage_transitions (id, program_id, from_stage, to_stage, transitioned_by, transitioned_at, approval_notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ProgramID, int(entry.FromStage), int(entry.ToStage),
		entry.TransitionedBy, entry.TransitionedAt.UTC().Format(timeFormat), entry.ApprovalNotes)
	if err != nil {
		return fmt.Errorf("appending transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transition: %w", err)
	}
	return nil
}

func (r *ProgramRepository) Transitions(ctx context.Context, programID string) ([]domain.StageTransition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, program_id, from_stage, to_stage, transitioned_by, transitioned_at, approval_notes
		 FROM stage_transitions WHERE program_id = ?
		 ORDER BY transitioned_at, id`, programID)
	if err != nil {
		return nil, fmt.Errorf("listing transitions: %w", err)
	}
	defer rows.Close()

	var entries []domain.StageTransition
	for rows.Next() {
		var e domain.StageTransition
		var from, to int
		var at string
		if err := rows.Scan(&e.ID, &e.ProgramID, &from, &to, &e.TransitionedBy, &at, &e.ApprovalNotes); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		e.FromStage = domain.Stage(from)
		e.ToStage = domain.Stage(to)
		e.TransitionedAt, _ = time.Parse(timeFormat, at)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *ProgramRepository) Stats(ctx context.Context) (domain.Stats, error) {
	var s domain.Stats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN current_stage < 5 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN current_stage = 5 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(delivery_budget), 0)
		 FROM programs`,
	).Scan(&s.TotalPrograms, &s.ActivePrograms, &s.ClosedPrograms, &s.PipelineBudget)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("computing stats: %w", err)
	}
	return s, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row rowScanner) (domain.Program, error) {
	var p domain.Program
	var stage int
	var rejectionStatus, createdAt, updatedAt string
	var rejectedAt, lastResubmittedAt, closedAt sql.NullString
	var zfdRating sql.NullInt64

	err := row.Scan(
		&p.ID, &p.Code, &stage, &p.Locked, &p.SalesPOCID, &p.OpsSPOCID,
		&p.FinanceApprovalRequired, &p.FinanceApprovalReceived, &p.HandoverAcceptedByOps,
		&rejectionStatus, &p.FinanceRejectionReason, &p.OpsRejectionReason,
		&p.RejectedBy, &rejectedAt, &p.ResubmissionCount, &lastResubmittedAt,
		&p.Intake.ProgramName, &p.Intake.ProgramType, &p.Intake.ProgramDates, &p.Intake.Location,
		&p.Intake.MinPax, &p.Intake.MaxPax,
		&p.Intake.CompanyName, &p.Intake.ClientPOCName, &p.Intake.ClientPOCPhone, &p.Intake.ClientPOCEmail,
		&p.Intake.Objectives, &p.Intake.DeliveryBudget, &p.Intake.BillingDetails, &p.Intake.AgendaDocument,
		&p.Feasibility.FacilitatorsBlocked, &p.Feasibility.HelperStaffBlocked, &p.Feasibility.TransportBlocked,
		&p.Feasibility.LogisticsList, &p.Feasibility.LogisticsListLocked, &p.Feasibility.AllResourcesBlocked, &p.Feasibility.PrepComplete,
		&p.Delivery.VenueReached, &p.Delivery.ProgramCompleted, &p.Delivery.DeliveryNotes, &p.Delivery.TripExpenseSheet,
		&p.Delivery.PackingCheckDone, &p.Delivery.ActualParticipantCount,
		&p.Closure.ClientFeedback, &zfdRating, &p.Closure.ZFDComments,
		&p.Closure.ExpensesBillsSubmitted, &p.Closure.OpsDataManagerUpdated,
		&closedAt, &p.ClosedBy, &p.FinalNotes, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Program{}, domain.ErrProgramNotFound
		}
		return domain.Program{}, fmt.Errorf("scanning program: %w", err)
	}

	p.CurrentStage = domain.Stage(stage)
	p.RejectionStatus = domain.RejectionStatus(rejectionStatus)
	p.RejectedAt = parseNullTime(rejectedAt)
	p.LastResubmittedAt = parseNullTime(lastResubmittedAt)
	p.ClosedAt = parseNullTime(closedAt)
	if zfdRating.Valid {
		v := int(zfdRating.Int64)
		p.Closure.ZFDRating = &v
	}
	p.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	p.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)

	return p, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
