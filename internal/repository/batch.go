// Package repository holds the SQL for each table of the store.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jengzang/taxi-etl-go/internal/models"
)

// insertBatchSize bounds the rows per multi-row INSERT so the placeholder
// count stays below the sqlite and mysql limits
const insertBatchSize = 200

// insertBatched writes n rows of len(cols) values each, fetching row i
// through values. Any failure is reported as a load failure.
func insertBatched(ctx context.Context, tx *sql.Tx, table string, cols []string, n int, values func(i int) []interface{}) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	for start := 0; start < n; start += insertBatchSize {
		end := start + insertBatchSize
		if end > n {
			end = n
		}

		groups := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(cols))
		for i := start; i < end; i++ {
			groups = append(groups, placeholder)
			args = append(args, values(i)...)
		}

		if _, err := tx.ExecContext(ctx, prefix+strings.Join(groups, ", "), args...); err != nil {
			return fmt.Errorf("%w: insert into %s rows %d-%d: %v", models.ErrLoadFailure, table, start, end-1, err)
		}
	}
	return nil
}

// clearTable deletes every row of table
func clearTable(ctx context.Context, tx *sql.Tx, table string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("%w: clear %s: %v", models.ErrLoadFailure, table, err)
	}
	return nil
}
