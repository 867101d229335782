package sqlc

import "context"

const getConnection = `
SELECT id, name, dialect, dsn_encrypted, last_modified_at
FROM connections
WHERE id = $1
`

func (q *Queries) GetConnection(ctx context.Context, id int64) (Connection, error) {
	var c Connection
	err := q.db.QueryRow(ctx, getConnection, id).Scan(&c.ID, &c.Name, &c.Dialect, &c.DsnEncrypted, &c.LastModifiedAt)
	return c, err
}

const listPredefinedQueries = `
SELECT id, name, description, sql_template, connection_id
FROM predefined_queries
ORDER BY id
`

func (q *Queries) ListPredefinedQueries(ctx context.Context) ([]PredefinedQuery, error) {
	rows, err := q.db.Query(ctx, listPredefinedQueries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PredefinedQuery
	for rows.Next() {
		var p PredefinedQuery
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.SQLTemplate, &p.ConnectionID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
