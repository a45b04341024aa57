package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neomorfeo/programflow/internal/app"
	"github.com/neomorfeo/programflow/internal/domain"
)

// --- Mocks ---

type mockRepo struct {
	programs    map[string]domain.Program
	transitions map[string][]domain.StageTransition
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		programs:    make(map[string]domain.Program),
		transitions: make(map[string][]domain.StageTransition),
	}
}

func (m *mockRepo) Create(_ context.Context, p domain.Program) error {
	m.programs[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (domain.Program, error) {
	p, ok := m.programs[id]
	if !ok {
		return domain.Program{}, domain.ErrProgramNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByCode(_ context.Context, code string) (domain.Program, error) {
	for _, p := range m.programs {
		if p.Code == code {
			return p, nil
		}
	}
	return domain.Program{}, domain.ErrProgramNotFound
}

func (m *mockRepo) List(_ context.Context, f domain.ListFilter) ([]domain.Program, error) {
	var out []domain.Program
	for _, p := range m.programs {
		if f.Stage != nil && p.CurrentStage != *f.Stage {
			continue
		}
		if f.FinanceApproved != nil && p.FinanceApprovalReceived != *f.FinanceApproved {
			continue
		}
		if f.OpsAccepted != nil && p.HandoverAcceptedByOps != *f.OpsAccepted {
			continue
		}
		if f.NotRejectedBy != domain.RejectionNone && p.RejectionStatus == f.NotRejectedBy {
			continue
		}
		if f.SalesPOCID != "" && p.SalesPOCID != f.SalesPOCID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, p domain.Program) error {
	if _, ok := m.programs[p.ID]; !ok {
		return domain.ErrProgramNotFound
	}
	m.programs[p.ID] = p
	return nil
}

func (m *mockRepo) UpdateWithTransition(_ context.Context, p domain.Program, fromStage domain.Stage, entry domain.StageTransition) error {
	stored, ok := m.programs[p.ID]
	if !ok {
		return domain.ErrProgramNotFound
	}
	if stored.CurrentStage != fromStage {
		return domain.ErrStaleProgram
	}
	m.programs[p.ID] = p
	m.transitions[p.ID] = append(m.transitions[p.ID], entry)
	return nil
}

func (m *mockRepo) Transitions(_ context.Context, programID string) ([]domain.StageTransition, error) {
	return m.transitions[programID], nil
}

func (m *mockRepo) Stats(_ context.Context) (domain.Stats, error) {
	s := domain.Stats{TotalPrograms: len(m.programs)}
	for _, p := range m.programs {
		if p.CurrentStage == domain.StageArchived {
			s.ClosedPrograms++
		} else {
			s.ActivePrograms++
		}
		s.PipelineBudget += p.Intake.DeliveryBudget
	}
	return s, nil
}

type mockUsers struct {
	users map[string]domain.User
}

func newMockUsers(users ...domain.User) *mockUsers {
	m := &mockUsers{users: make(map[string]domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUsers) Create(_ context.Context, u domain.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *mockUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *mockUsers) ListByRole(_ context.Context, roles ...domain.Role) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.users {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

type mockNotifier struct {
	sent []domain.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n domain.Notification) error {
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) lastEvent() string {
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Event
}

// stubValidator resolves events against the domain transition table.
type stubValidator struct{}

func (stubValidator) Apply(_ context.Context, current domain.Stage, event domain.Event) (domain.Stage, error) {
	for _, tr := range domain.Transitions {
		if tr.Event == event && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return 0, &domain.TransitionError{Event: event, Current: current}
}

// --- Fixtures ---

var (
	salesActor   = domain.Actor{ID: "sales-1", Role: domain.RoleSales}
	opsActor     = domain.Actor{ID: "ops-1", Role: domain.RoleOps}
	financeActor = domain.Actor{ID: "fin-1", Role: domain.RoleFinance}
	adminActor   = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

func newTestService() (*app.ProgramService, *mockRepo, *mockNotifier) {
	repo := newMockRepo()
	users := newMockUsers(
		domain.User{ID: "sales-1", Name: "Sam", Email: "sam@example.com", Role: domain.RoleSales},
		domain.User{ID: "ops-1", Name: "Olive", Email: "olive@example.com", Role: domain.RoleOps},
		domain.User{ID: "fin-1", Name: "Fin", Email: "fin@example.com", Role: domain.RoleFinance},
		domain.User{ID: "admin-1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleAdmin},
	)
	notifier := &mockNotifier{}
	svc := app.NewProgramService(repo, users, notifier, stubValidator{})
	return svc, repo, notifier
}

func intPtr(v int) *int { return &v }

// createReady creates a program and brings it to the brink of handover:
// finance approved, agenda uploaded.
func createReady(t *testing.T, svc *app.ProgramService) domain.Program {
	t.Helper()
	ctx := context.Background()

	p, err := svc.CreateProgram(ctx, salesActor, domain.IntakeDetails{
		ProgramName:    "Leadership Offsite",
		CompanyName:    "Acme Corp",
		DeliveryBudget: 250000,
		AgendaDocument: "/files/documents/agenda.pdf",
	})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	if _, err := svc.ApproveFinance(ctx, financeActor, p.ID); err != nil {
		t.Fatalf("ApproveFinance: %v", err)
	}
	p, err = svc.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return p
}

// --- Tests ---

func TestCreateProgram_Success(t *testing.T) {
	svc, repo, notifier := newTestService()

	p, err := svc.CreateProgram(context.Background(), salesActor, domain.IntakeDetails{
		ProgramName:    "Leadership Offsite",
		DeliveryBudget: 100000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.CurrentStage != domain.StageIntake {
		t.Errorf("CurrentStage = %d, want %d", p.CurrentStage, domain.StageIntake)
	}
	if p.SalesPOCID != "sales-1" {
		t.Errorf("SalesPOCID = %q, want %q", p.SalesPOCID, "sales-1")
	}
	if !p.FinanceApprovalRequired {
		t.Error("FinanceApprovalRequired should default to true")
	}
	if !strings.HasPrefix(p.Code, "PRG-") {
		t.Errorf("Code = %q, want PRG- prefix", p.Code)
	}

	stored, err := repo.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("program not persisted: %v", err)
	}
	if stored.Intake.ProgramName != "Leadership Offsite" {
		t.Errorf("stored ProgramName = %q", stored.Intake.ProgramName)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.Event != "program.created" {
		t.Errorf("event = %q, want %q", n.Event, "program.created")
	}
	// Creator, finance pool, and admin pool, each exactly once.
	seen := make(map[string]int)
	for _, addr := range n.To {
		seen[addr]++
	}
	for _, addr := range []string{"sam@example.com", "fin@example.com", "ada@example.com"} {
		if seen[addr] != 1 {
			t.Errorf("recipient %q appears %d times, want 1", addr, seen[addr])
		}
	}
}

func TestCreateProgram_Unauthorized(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateProgram(context.Background(), opsActor, domain.IntakeDetails{ProgramName: "X"})
	var authErr *domain.UnauthorizedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	if authErr.Role != domain.RoleOps {
		t.Errorf("role = %q, want %q", authErr.Role, domain.RoleOps)
	}
}

func TestCreateProgram_MissingName(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateProgram(context.Background(), salesActor, domain.IntakeDetails{ProgramName: "   "})
	var inputErr *domain.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %v", err)
	}
}

func TestGetByCode(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.CreateProgram(context.Background(), salesActor, domain.IntakeDetails{
		ProgramName: "Leadership Offsite",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetByCode(context.Background(), created.Code)
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}

	if _, err := svc.GetByCode(context.Background(), "PRG-NOPE"); !errors.Is(err, domain.ErrProgramNotFound) {
		t.Errorf("expected ErrProgramNotFound, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	p := createReady(t, svc)

	// Stage 1 → 2: ops accepts the handover.
	p2, err := svc.AcceptHandover(ctx, opsActor, p.ID)
	if err != nil {
		t.Fatalf("AcceptHandover: %v", err)
	}
	if p2.CurrentStage != domain.StageFeasibility {
		t.Errorf("CurrentStage = %d, want %d", p2.CurrentStage, domain.StageFeasibility)
	}
	if p2.OpsSPOCID != "ops-1" {
		t.Errorf("OpsSPOCID = %q, want %q", p2.OpsSPOCID, "ops-1")
	}
	if !p2.HandoverAcceptedByOps {
		t.Error("HandoverAcceptedByOps should be set")
	}

	// Stage 2 → 3.
	if _, err := svc.UpdateStage2(ctx, opsActor, p.ID, domain.FeasibilityDetails{
		FacilitatorsBlocked: "Jane, Ravi",
		LogisticsListLocked: true,
		AllResourcesBlocked: true,
		PrepComplete:        true,
	}); err != nil {
		t.Fatalf("UpdateStage2: %v", err)
	}
	if _, err := svc.MoveToStage3(ctx, opsActor, p.ID); err != nil {
		t.Fatalf("MoveToStage3: %v", err)
	}

	// Stage 3 → 4.
	if _, err := svc.UpdateStage3(ctx, opsActor, p.ID, domain.DeliveryDetails{
		VenueReached:     true,
		ProgramCompleted: true,
		TripExpenseSheet: "/files/documents/expenses.xlsx",
		PackingCheckDone: true,
	}); err != nil {
		t.Fatalf("UpdateStage3: %v", err)
	}
	if _, err := svc.MoveToStage4(ctx, opsActor, p.ID); err != nil {
		t.Fatalf("MoveToStage4: %v", err)
	}

	// Stage 4 → 5.
	if _, err := svc.UpdateStage4(ctx, opsActor, p.ID, domain.ClosureDetails{
		ZFDRating:              intPtr(5),
		ExpensesBillsSubmitted: true,
		OpsDataManagerUpdated:  true,
	}); err != nil {
		t.Fatalf("UpdateStage4: %v", err)
	}
	closed, err := svc.MoveToStage5(ctx, opsActor, p.ID)
	if err != nil {
		t.Fatalf("MoveToStage5: %v", err)
	}

	if closed.CurrentStage != domain.StageArchived {
		t.Errorf("CurrentStage = %d, want %d", closed.CurrentStage, domain.StageArchived)
	}
	if !closed.Locked {
		t.Error("archived program must be locked")
	}
	if closed.ClosedAt == nil {
		t.Error("ClosedAt must be set")
	}
	if closed.ClosedBy != "ops-1" {
		t.Errorf("ClosedBy = %q, want %q", closed.ClosedBy, "ops-1")
	}

	// Exactly one audit entry per transition: 1→2, 2→3, 3→4, 4→5.
	entries, err := svc.Transitions(ctx, p.ID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 transitions, got %d", len(entries))
	}
	wantPath := [][2]domain.Stage{{1, 2}, {2, 3}, {3, 4}, {4, 5}}
	for i, e := range entries {
		if e.FromStage != wantPath[i][0] || e.ToStage != wantPath[i][1] {
			t.Errorf("entry %d: %d → %d, want %d → %d", i, e.FromStage, e.ToStage, wantPath[i][0], wantPath[i][1])
		}
		if e.TransitionedBy != "ops-1" {
			t.Errorf("entry %d: TransitionedBy = %q", i, e.TransitionedBy)
		}
	}
	if !strings.Contains(entries[3].ApprovalNotes, "ZFD rating: 5/5") {
		t.Errorf("closing notes = %q, want ZFD rating mention", entries[3].ApprovalNotes)
	}

	if notifier.lastEvent() != "program.closed" {
		t.Errorf("last notification event = %q, want %q", notifier.lastEvent(), "program.closed")
	}

	// The stored program matches what the service returned.
	stored, _ := repo.GetByID(ctx, p.ID)
	if !stored.Locked || stored.CurrentStage != domain.StageArchived {
		t.Error("stored program not archived")
	}
}

func TestAcceptHandover_CriteriaUnmet(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	// No finance approval and no agenda document.
	p, err := svc.CreateProgram(ctx, salesActor, domain.IntakeDetails{ProgramName: "Summit"})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}

	_, err = svc.AcceptHandover(ctx, opsActor, p.ID)
	var critErr *domain.CriteriaError
	if !errors.As(err, &critErr) {
		t.Fatalf("expected CriteriaError, got %v", err)
	}
	if len(critErr.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2: %v", len(critErr.Errors), critErr.Errors)
	}
	if critErr.From != domain.StageIntake || critErr.To != domain.StageFeasibility {
		t.Errorf("boundary = %d → %d, want 1 → 2", critErr.From, critErr.To)
	}

	// A failed acceptance persists nothing.
	stored, _ := repo.GetByID(ctx, p.ID)
	if stored.OpsSPOCID != "" || stored.HandoverAcceptedByOps {
		t.Error("failed handover must not leave partial flags behind")
	}
	if stored.CurrentStage != domain.StageIntake {
		t.Errorf("CurrentStage = %d, want %d", stored.CurrentStage, domain.StageIntake)
	}
	if entries, _ := svc.Transitions(ctx, p.ID); len(entries) != 0 {
		t.Errorf("expected no transitions, got %d", len(entries))
	}
}

func TestAcceptHandover_Unauthorized(t *testing.T) {
	svc, _, _ := newTestService()
	p := createReady(t, svc)

	_, err := svc.AcceptHandover(context.Background(), salesActor, p.ID)
	var authErr *domain.UnauthorizedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestAdvance_Unauthorized(t *testing.T) {
	svc, _, _ := newTestService()
	p := createReady(t, svc)
	if _, err := svc.AcceptHandover(context.Background(), opsActor, p.ID); err != nil {
		t.Fatalf("AcceptHandover: %v", err)
	}

	_, err := svc.MoveToStage3(context.Background(), salesActor, p.ID)
	var authErr *domain.UnauthorizedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestAdvance_CriteriaUnmet_ListsAll(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p := createReady(t, svc)
	if _, err := svc.AcceptHandover(ctx, opsActor, p.ID); err != nil {
		t.Fatalf("AcceptHandover: %v", err)
	}

	// Stage 2 with nothing done: all four criteria must come back.
	_, err := svc.MoveToStage3(ctx, opsActor, p.ID)
	var critErr *domain.CriteriaError
	if !errors.As(err, &critErr) {
		t.Fatalf("expected CriteriaError, got %v", err)
	}
	if len(critErr.Errors) != 4 {
		t.Errorf("len(Errors) = %d, want 4: %v", len(critErr.Errors), critErr.Errors)
	}
}

func TestAdvance_WrongStage(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p := createReady(t, svc)
	if _, err := svc.AcceptHandover(ctx, opsActor, p.ID); err != nil {
		t.Fatalf("AcceptHandover: %v", err)
	}

	// Cannot complete delivery from feasibility.
	_, err := svc.MoveToStage4(ctx, opsActor, p.ID)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Current != domain.StageFeasibility {
		t.Errorf("current = %d, want %d", trErr.Current, domain.StageFeasibility)
	}
}

func TestRejectResubmitCycle(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	p, err := svc.CreateProgram(ctx, salesActor, domain.IntakeDetails{ProgramName: "Summit"})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}

	// Finance rejects with a proper reason.
	rejected, err := svc.RejectFinance(ctx, financeActor, p.ID, "Budget exceeds the quarterly allocation")
	if err != nil {
		t.Fatalf("RejectFinance: %v", err)
	}
	if rejected.RejectionStatus != domain.RejectedFinance {
		t.Errorf("RejectionStatus = %q, want %q", rejected.RejectionStatus, domain.RejectedFinance)
	}
	if rejected.FinanceApprovalReceived {
		t.Error("rejection must reset the finance approval flag")
	}
	if rejected.RejectedBy != "fin-1" || rejected.RejectedAt == nil {
		t.Error("rejection metadata not recorded")
	}
	if rejected.CurrentStage != domain.StageIntake {
		t.Error("rejection must not change the stage")
	}
	if notifier.lastEvent() != "finance.rejected" {
		t.Errorf("last event = %q, want %q", notifier.lastEvent(), "finance.rejected")
	}

	// Owner resubmits.
	resubmitted, err := svc.Resubmit(ctx, salesActor, p.ID)
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if resubmitted.Rejected() {
		t.Error("resubmission must clear the rejection")
	}
	if resubmitted.ResubmissionCount != 1 {
		t.Errorf("ResubmissionCount = %d, want 1", resubmitted.ResubmissionCount)
	}
	if resubmitted.LastResubmittedAt == nil {
		t.Error("LastResubmittedAt must be set")
	}
	if resubmitted.FinanceRejectionReason == "" {
		t.Error("rejection reason stays on record after resubmission")
	}
	if notifier.lastEvent() != "program.resubmitted" {
		t.Errorf("last event = %q, want %q", notifier.lastEvent(), "program.resubmitted")
	}

	// A second resubmit without a new rejection fails.
	if _, err := svc.Resubmit(ctx, salesActor, p.ID); !errors.Is(err, domain.ErrNotRejected) {
		t.Errorf("expected ErrNotRejected, got %v", err)
	}

	// Only one resubmission recorded.
	stored, _ := repo.GetByID(ctx, p.ID)
	if stored.ResubmissionCount != 1 {
		t.Errorf("stored ResubmissionCount = %d, want 1", stored.ResubmissionCount)
	}
}

func TestReject_ShortReason(t *testing.T) {
	svc, _, _ := newTestService()
	p := createReady(t, svc)

	_, err := svc.RejectFinance(context.Background(), financeActor, p.ID, "   too low   ")
	var inputErr *domain.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %v", err)
	}
	if inputErr.Field != "reason" {
		t.Errorf("field = %q, want %q", inputErr.Field, "reason")
	}
}

func TestRejectHandover_ResetsAcceptance(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p := createReady(t, svc)

	rejected, err := svc.RejectHandover(ctx, opsActor, p.ID, "Dates clash with another delivery")
	if err != nil {
		t.Fatalf("RejectHandover: %v", err)
	}
	if rejected.RejectionStatus != domain.RejectedOps {
		t.Errorf("RejectionStatus = %q, want %q", rejected.RejectionStatus, domain.RejectedOps)
	}
	if rejected.HandoverAcceptedByOps {
		t.Error("handover rejection must reset the acceptance flag")
	}
	if rejected.OpsRejectionReason != "Dates clash with another delivery" {
		t.Errorf("OpsRejectionReason = %q", rejected.OpsRejectionReason)
	}
}

func TestResubmit_NotOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p := createReady(t, svc)
	if _, err := svc.RejectFinance(ctx, financeActor, p.ID, "Budget exceeds allocation"); err != nil {
		t.Fatalf("RejectFinance: %v", err)
	}

	other := domain.Actor{ID: "sales-2", Role: domain.RoleSales}
	_, err := svc.Resubmit(ctx, other, p.ID)
	var authErr *domain.UnauthorizedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}

	// Admin may resubmit on the owner's behalf.
	if _, err := svc.Resubmit(ctx, adminActor, p.ID); err != nil {
		t.Errorf("admin resubmit failed: %v", err)
	}
}

func TestArchived_BlocksMutation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	p := archiveProgram(t, svc)

	var lockedErr *domain.LockedError

	_, err := svc.UpdateStage4(ctx, opsActor, p.ID, domain.ClosureDetails{})
	if !errors.As(err, &lockedErr) {
		t.Errorf("UpdateStage4 on archived: expected LockedError, got %v", err)
	}

	_, err = svc.RejectFinance(ctx, financeActor, p.ID, "Far too late for a rejection")
	if !errors.As(err, &lockedErr) {
		t.Errorf("RejectFinance on archived: expected LockedError, got %v", err)
	}

	_, err = svc.MoveToStage3(ctx, opsActor, p.ID)
	if !errors.As(err, &lockedErr) {
		t.Errorf("MoveToStage3 on archived: expected LockedError, got %v", err)
	}
}

func TestReopen(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()
	p := archiveProgram(t, svc)

	// Non-admin cannot reopen, not even ops.
	_, err := svc.Reopen(ctx, opsActor, p.ID, "The client disputed the final invoice")
	var authErr *domain.UnauthorizedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}

	// Justification below the minimum is refused.
	_, err = svc.Reopen(ctx, adminActor, p.ID, "short")
	var inputErr *domain.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %v", err)
	}

	reopened, err := svc.Reopen(ctx, adminActor, p.ID, "The client disputed the final invoice")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.CurrentStage != domain.StageClosure {
		t.Errorf("CurrentStage = %d, want %d", reopened.CurrentStage, domain.StageClosure)
	}
	if reopened.Locked {
		t.Error("reopened program must be unlocked")
	}
	if !strings.Contains(reopened.FinalNotes, "[REOPENED by admin-1") {
		t.Errorf("FinalNotes = %q, want reopen annotation", reopened.FinalNotes)
	}
	if !strings.Contains(reopened.FinalNotes, "The client disputed the final invoice") {
		t.Errorf("FinalNotes = %q, want justification", reopened.FinalNotes)
	}

	// The reopen shows up in the audit trail as 5 → 4.
	entries, _ := svc.Transitions(ctx, p.ID)
	last := entries[len(entries)-1]
	if last.FromStage != domain.StageArchived || last.ToStage != domain.StageClosure {
		t.Errorf("last transition %d → %d, want 5 → 4", last.FromStage, last.ToStage)
	}
	if last.TransitionedBy != "admin-1" {
		t.Errorf("TransitionedBy = %q, want %q", last.TransitionedBy, "admin-1")
	}

	if notifier.lastEvent() != "program.reopened" {
		t.Errorf("last event = %q, want %q", notifier.lastEvent(), "program.reopened")
	}
}

func TestReopen_AppendsToExistingNotes(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	p := archiveProgram(t, svc)

	// Simulate notes written at closure time.
	stored, _ := repo.GetByID(ctx, p.ID)
	stored.FinalNotes = "Delivered on time."
	if err := repo.Update(ctx, stored); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := svc.Reopen(ctx, adminActor, p.ID, "Expense sheet needs a correction")
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if !strings.HasPrefix(reopened.FinalNotes, "Delivered on time.") {
		t.Errorf("FinalNotes = %q, original notes must survive", reopened.FinalNotes)
	}
	if !strings.Contains(reopened.FinalNotes, "Reason: Expense sheet needs a correction") {
		t.Errorf("FinalNotes = %q, want appended reason", reopened.FinalNotes)
	}
}

func TestUpdateStage4_RatingOutOfRange(t *testing.T) {
	svc, _, _ := newTestService()
	p := createReady(t, svc)

	_, err := svc.UpdateStage4(context.Background(), opsActor, p.ID, domain.ClosureDetails{ZFDRating: intPtr(9)})
	var inputErr *domain.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %v", err)
	}
	if inputErr.Field != "zfdRating" {
		t.Errorf("field = %q, want %q", inputErr.Field, "zfdRating")
	}
}

func TestPendingApprovals(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// One awaiting finance, one finance-approved awaiting ops, one
	// finance-rejected.
	waiting, _ := svc.CreateProgram(ctx, salesActor, domain.IntakeDetails{ProgramName: "Waiting"})
	approved := createReady(t, svc)
	rejected, _ := svc.CreateProgram(ctx, salesActor, domain.IntakeDetails{ProgramName: "Rejected"})
	if _, err := svc.RejectFinance(ctx, financeActor, rejected.ID, "Budget exceeds allocation"); err != nil {
		t.Fatalf("RejectFinance: %v", err)
	}

	finQueue, err := svc.PendingApprovals(ctx, financeActor)
	if err != nil {
		t.Fatalf("PendingApprovals(finance): %v", err)
	}
	if len(finQueue) != 1 || finQueue[0].ID != waiting.ID {
		t.Errorf("finance queue = %v, want only %q", ids(finQueue), waiting.ID)
	}

	opsQueue, err := svc.PendingApprovals(ctx, opsActor)
	if err != nil {
		t.Fatalf("PendingApprovals(ops): %v", err)
	}
	if len(opsQueue) != 1 || opsQueue[0].ID != approved.ID {
		t.Errorf("ops queue = %v, want only %q", ids(opsQueue), approved.ID)
	}

	salesQueue, err := svc.PendingApprovals(ctx, salesActor)
	if err != nil {
		t.Fatalf("PendingApprovals(sales): %v", err)
	}
	if len(salesQueue) != 0 {
		t.Errorf("sales queue = %v, want empty", ids(salesQueue))
	}
}

func TestResolveActor(t *testing.T) {
	svc, _, _ := newTestService()

	actor, err := svc.ResolveActor(context.Background(), "ops-1")
	if err != nil {
		t.Fatalf("ResolveActor: %v", err)
	}
	if actor.Role != domain.RoleOps {
		t.Errorf("role = %q, want %q", actor.Role, domain.RoleOps)
	}

	if _, err := svc.ResolveActor(context.Background(), "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func ids(programs []domain.Program) []string {
	out := make([]string, len(programs))
	for i, p := range programs {
		out[i] = p.ID
	}
	return out
}

// archiveProgram drives a program through the whole lifecycle to the
// archived stage.
func archiveProgram(t *testing.T, svc *app.ProgramService) domain.Program {
	t.Helper()
	ctx := context.Background()

	p := createReady(t, svc)
	if _, err := svc.AcceptHandover(ctx, opsActor, p.ID); err != nil {
		t.Fatalf("AcceptHandover: %v", err)
	}
	if _, err := svc.UpdateStage2(ctx, opsActor, p.ID, domain.FeasibilityDetails{
		FacilitatorsBlocked: "Jane",
		LogisticsListLocked: true,
		AllResourcesBlocked: true,
		PrepComplete:        true,
	}); err != nil {
		t.Fatalf("UpdateStage2: %v", err)
	}
	if _, err := svc.MoveToStage3(ctx, opsActor, p.ID); err != nil {
		t.Fatalf("MoveToStage3: %v", err)
	}
	if _, err := svc.UpdateStage3(ctx, opsActor, p.ID, domain.DeliveryDetails{
		ProgramCompleted: true,
		TripExpenseSheet: "/files/documents/expenses.xlsx",
		PackingCheckDone: true,
	}); err != nil {
		t.Fatalf("UpdateStage3: %v", err)
	}
	if _, err := svc.MoveToStage4(ctx, opsActor, p.ID); err != nil {
		t.Fatalf("MoveToStage4: %v", err)
	}
	if _, err := svc.UpdateStage4(ctx, opsActor, p.ID, domain.ClosureDetails{
		ZFDRating:              intPtr(4),
		ExpensesBillsSubmitted: true,
		OpsDataManagerUpdated:  true,
	}); err != nil {
		t.Fatalf("UpdateStage4: %v", err)
	}
	archived, err := svc.MoveToStage5(ctx, opsActor, p.ID)
	if err != nil {
		t.Fatalf("MoveToStage5: %v", err)
	}
	return archived
}
