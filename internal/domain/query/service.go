package query

import (
	"context"

	"trackgate/internal/infrastructure/metrics"
	"trackgate/internal/utils/platformerrors"
)

// Executor runs a rendered statement against the mirror database.
type Executor interface {
	Execute(ctx context.Context, stmt Statement) ([]map[string]any, error)
}

// Service renders and executes whitelisted analytical queries.
type Service struct {
	engine *Engine
	exec   Executor
}

func NewService(engine *Engine, exec Executor) *Service {
	return &Service{engine: engine, exec: exec}
}

// Run renders the spec and executes it. Render rejections surface as
// QUERY_REJECTED; execution failures as INTERNAL.
func (s *Service) Run(ctx context.Context, spec Spec) ([]map[string]any, error) {
	stmt, err := s.engine.Render(ctx, spec)
	if err != nil {
		metrics.QueryRendersTotal.WithLabelValues(spec.Template, "rejected").Inc()
		return nil, err
	}
	metrics.QueryRendersTotal.WithLabelValues(spec.Template, "ok").Inc()

	rows, err := s.exec.Execute(ctx, stmt)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerQuery, err, "mirror query failed")
	}
	return rows, nil
}
