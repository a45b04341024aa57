package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/programflow/internal/domain"
)

const tracerName = "github.com/neomorfeo/programflow/internal/adapter/otel"

// TracingRepository wraps a domain.ProgramRepository with OpenTelemetry
// tracing. Each method creates a span with semantic attributes and
// records errors.
type TracingRepository struct {
	next   domain.ProgramRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.ProgramRepository.
var _ domain.ProgramRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.ProgramRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

// end records the error (if any) and closes the span.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *TracingRepository) Create(ctx context.Context, program domain.Program) error {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.Create",
		trace.WithAttributes(
			attribute.String("program.id", program.ID),
			attribute.String("program.code", program.Code),
		),
	)
	err := r.next.Create(ctx, program)
	end(span, err)
	return err
}

func (r *TracingRepository) GetByID(ctx context.Context, id string) (domain.Program, error) {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.GetByID",
		trace.WithAttributes(attribute.String("program.id", id)),
	)
	program, err := r.next.GetByID(ctx, id)
	end(span, err)
	return program, err
}

func (r *TracingRepository) GetByCode(ctx context.Context, code string) (domain.Program, error) {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.GetByCode",
		trace.WithAttributes(attribute.String("program.code", code)),
	)
	program, err := r.next.GetByCode(ctx, code)
	end(span, err)
	return program, err
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Program, error) {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	if filter.Stage != nil {
		span.SetAttributes(attribute.Int("filter.stage", int(*filter.Stage)))
	}

	programs, err := r.next.List(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(programs)))
	}
	end(span, err)
	return programs, err
}

func (r *TracingRepository) Update(ctx context.Context, program domain.Program) error {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.Update",
		trace.WithAttributes(
			attribute.String("program.id", program.ID),
			attribute.Int("program.stage", int(program.CurrentStage)),
		),
	)
	err := r.next.Update(ctx, program)
	end(span, err)
	return err
}

func (r *TracingRepository) UpdateWithTransition(ctx context.Context, program domain.Program, fromStage domain.Stage, entry domain.StageTransition) error {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.UpdateWithTransition",
		trace.WithAttributes(
			attribute.String("program.id", program.ID),
			attribute.Int("transition.from", int(entry.FromStage)),
			attribute.Int("transition.to", int(entry.ToStage)),
		),
	)
	err := r.next.UpdateWithTransition(ctx, program, fromStage, entry)
	end(span, err)
	return err
}

func (r *TracingRepository) Transitions(ctx context.Context, programID string) ([]domain.StageTransition, error) {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.Transitions",
		trace.WithAttributes(attribute.String("program.id", programID)),
	)
	entries, err := r.next.Transitions(ctx, programID)
	end(span, err)
	return entries, err
}

func (r *TracingRepository) Stats(ctx context.Context) (domain.Stats, error) {
	ctx, span := r.tracer.Start(ctx, "ProgramRepository.Stats")
	stats, err := r.next.Stats(ctx)
	end(span, err)
	return stats, err
}
