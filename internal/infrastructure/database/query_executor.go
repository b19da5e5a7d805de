package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"trackgate/internal/domain/query"
)

// QueryExecutor runs rendered statements against the read-only mirror. The
// template engine guarantees the statement is parameterized and
// tenant-scoped before it reaches this point.
type QueryExecutor struct {
	db *gorm.DB
}

func NewQueryExecutor(db *gorm.DB) *QueryExecutor {
	return &QueryExecutor{db: db}
}

// Execute runs the statement and returns the rows as generic records.
func (e *QueryExecutor) Execute(ctx context.Context, stmt query.Statement) ([]map[string]any, error) {
	var rows []map[string]any
	if err := e.db.WithContext(ctx).Raw(stmt.SQL, stmt.Args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("execute mirror query: %w", err)
	}
	return rows, nil
}
