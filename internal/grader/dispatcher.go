package grader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/me/autograde/pkg/model"
)

// ExerciseSource is the part of the store the Dispatcher reads.
type ExerciseSource interface {
	GetAutoExercise(ctx context.Context, id string) (*model.AutoExercise, error)
	ListExecutorsFor(ctx context.Context, autoExerciseID string) ([]*model.Executor, error)
}

// Dispatcher implements Client by routing each call to the least loaded
// executor linked to the auto exercise.
type Dispatcher struct {
	source   ExerciseSource
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(source ExerciseSource, registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		source:   source,
		registry: registry,
		logger:   logger.With("component", "grader"),
	}
}

// Grade implements Client.
func (d *Dispatcher) Grade(ctx context.Context, graderID, solution string) (*model.GradeResult, error) {
	ae, err := d.source.GetAutoExercise(ctx, graderID)
	if err != nil {
		return nil, fmt.Errorf("load auto exercise %s: %w", graderID, err)
	}
	if ae == nil {
		return nil, fmt.Errorf("auto exercise %s not found", graderID)
	}

	capable, err := d.source.ListExecutorsFor(ctx, graderID)
	if err != nil {
		return nil, fmt.Errorf("list executors for %s: %w", graderID, err)
	}

	lease, err := d.registry.Pick(ctx, capable)
	if err != nil {
		return nil, fmt.Errorf("auto exercise %s: %w", graderID, err)
	}
	defer lease.Release()

	d.logger.Debug("dispatching",
		"auto_exercise_id", graderID,
		"executor", lease.Executor.Name,
		"load", lease.Executor.Load,
		"max_load", lease.Executor.MaxLoad,
	)

	res, err := lease.Backend.Grade(ctx, NewRequest(ae, solution))
	if err != nil {
		return nil, fmt.Errorf("executor %s: %w", lease.Executor.Name, err)
	}
	return res, nil
}
