package sqlc

import "context"

const listCatalogTablesForScans = `
SELECT id, scan_id, connection_id, schema, name, type, description, annotations
FROM catalog_tables
WHERE scan_id = ANY($1)
ORDER BY connection_id, schema, name
`

func (q *Queries) ListCatalogTablesForScans(ctx context.Context, scanIDs []int64) ([]CatalogTable, error) {
	rows, err := q.db.Query(ctx, listCatalogTablesForScans, scanIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogTable
	for rows.Next() {
		var t CatalogTable
		if err := rows.Scan(&t.ID, &t.ScanID, &t.ConnectionID, &t.Schema, &t.Name, &t.Type, &t.Description, &t.Annotations); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const listCatalogColumnsForTables = `
SELECT id, table_id, name, type, nullable, annotations, position
FROM catalog_columns
WHERE table_id = ANY($1)
ORDER BY table_id, position
`

func (q *Queries) ListCatalogColumnsForTables(ctx context.Context, tableIDs []int64) ([]CatalogColumn, error) {
	rows, err := q.db.Query(ctx, listCatalogColumnsForTables, tableIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogColumn
	for rows.Next() {
		var c CatalogColumn
		if err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.Type, &c.Nullable, &c.Annotations, &c.Position); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const listCatalogConstraintsForTables = `
SELECT id, table_id, name, type, definition
FROM catalog_constraints
WHERE table_id = ANY($1)
ORDER BY table_id, name
`

func (q *Queries) ListCatalogConstraintsForTables(ctx context.Context, tableIDs []int64) ([]CatalogConstraint, error) {
	rows, err := q.db.Query(ctx, listCatalogConstraintsForTables, tableIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogConstraint
	for rows.Next() {
		var c CatalogConstraint
		if err := rows.Scan(&c.ID, &c.TableID, &c.Name, &c.Type, &c.Definition); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const listCatalogIndexesForTables = `
SELECT id, table_id, name, definition, is_unique
FROM catalog_indexes
WHERE table_id = ANY($1)
ORDER BY table_id, name
`

func (q *Queries) ListCatalogIndexesForTables(ctx context.Context, tableIDs []int64) ([]CatalogIndex, error) {
	rows, err := q.db.Query(ctx, listCatalogIndexesForTables, tableIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogIndex
	for rows.Next() {
		var idx CatalogIndex
		if err := rows.Scan(&idx.ID, &idx.TableID, &idx.Name, &idx.Definition, &idx.IsUnique); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

const listCatalogSamplesForTables = `
SELECT id, table_id, row_json
FROM catalog_samples
WHERE table_id = ANY($1)
ORDER BY table_id, id
`

func (q *Queries) ListCatalogSamplesForTables(ctx context.Context, tableIDs []int64) ([]CatalogSample, error) {
	rows, err := q.db.Query(ctx, listCatalogSamplesForTables, tableIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogSample
	for rows.Next() {
		var s CatalogSample
		if err := rows.Scan(&s.ID, &s.TableID, &s.RowJSON); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
