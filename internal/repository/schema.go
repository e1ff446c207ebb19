package repository

import (
	"context"
	"database/sql"
	"fmt"

	"dsgvo-downloader/internal/models"
)

// ColumnInfo one row of information_schema.columns
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
	Default  *string
}

// ExpectedColumns column sets of the provisioned tables
var ExpectedColumns = map[string][]string{
	IncidentsTable: {
		"incident_id", "org_publish_date", "modified_date", "published", "publish_date",
		"affected_obj", "affected_type", "country", "details_text", "tags", "href",
		"references", "incident_text",
	},
	HistoryTable: {"id", "content", "created_at"},
}

// DescribeTable lists the columns of a public table in ordinal order.
func (r *IncidentRepository) DescribeTable(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = 'public'
		  AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := r.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query columns of %s: %v", models.ErrStorage, table, err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var nullable string
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &def); err != nil {
			return nil, fmt.Errorf("%w: failed to scan column: %v", models.ErrStorage, err)
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.Default = &def.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to query columns of %s: %v", models.ErrStorage, table, err)
	}
	return columns, nil
}

// CheckColumns compares a table description with ExpectedColumns and returns one
// problem per missing or nullable column.
func CheckColumns(table string, columns []ColumnInfo) []string {
	byName := make(map[string]ColumnInfo, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}

	var problems []string
	for _, name := range ExpectedColumns[table] {
		col, ok := byName[name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s.%s is missing", table, name))
			continue
		}
		if col.Nullable {
			problems = append(problems, fmt.Sprintf("%s.%s must be NOT NULL", table, name))
		}
	}
	return problems
}
