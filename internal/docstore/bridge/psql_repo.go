package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS document
(
    collection VARCHAR     NOT NULL,
    id         VARCHAR     NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    data       JSONB       NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS ix_document_data ON document USING gin (data);
`

// PsqlRepo keeps every collection in one table, one jsonb row per document.
type PsqlRepo struct {
	db *pgxpool.Pool
}

func NewPsqlRepo(db *pgxpool.Pool) *PsqlRepo {
	return &PsqlRepo{
		db: db,
	}
}

func (r *PsqlRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// EnsureSchema creates the document table and its index when missing.
func (r *PsqlRepo) EnsureSchema(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bridge.ensureSchema")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// containment builds the jsonb filter for the query. Null values are left
// out: a missing field has to match too, which @> cannot express.
func containment(query docstore.Query) (string, error) {
	filter := make(map[string]any, len(query))
	for k, v := range query {
		if v != nil {
			filter[k] = v
		}
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return "", fmt.Errorf("%w: query: %s", docstore.ErrInvalidDocument, err)
	}
	return string(raw), nil
}

type row struct {
	id  string
	doc docstore.Document
}

func scanRows(rows pgx.Rows) ([]row, error) {
	defer rows.Close()

	var out []row
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		var doc docstore.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document %s: %w", id, err)
		}
		out = append(out, row{id: id, doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// matching returns the rows matching the query exactly, in insertion order.
// The jsonb containment narrows the scan, docstore.Matches decides.
func matching(ctx context.Context, q querier, collection string, query docstore.Query, forUpdate bool) ([]row, error) {
	filter, err := containment(query)
	if err != nil {
		return nil, err
	}

	sql := `SELECT id, data FROM document
			WHERE collection = $1 AND data @> $2::jsonb
			ORDER BY created_at, id`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, sql, collection, filter)
	if err != nil {
		return nil, err
	}
	all, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, rw := range all {
		if docstore.Matches(rw.doc, query) {
			out = append(out, rw)
		}
	}
	return out, nil
}

func (r *PsqlRepo) Find(ctx context.Context, collection string, query docstore.Query) (_ []docstore.Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bridge.find")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", collection))

	rows, err := matching(ctx, r.db, collection, query, false)
	if err != nil {
		return nil, err
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, rw := range rows {
		docs = append(docs, rw.doc)
	}
	return docs, nil
}

func (r *PsqlRepo) Insert(ctx context.Context, collection string, docs []docstore.Document) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bridge.insert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("docs", len(docs)),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
		}

		createdAt, parseErr := docstore.ParseTime(doc.String(docstore.FieldCreatedAt))
		if parseErr != nil {
			createdAt = time.Now()
		}

		if _, err := tx.Exec(
			ctx,
			`INSERT INTO document (collection, id, created_at, data) VALUES ($1, $2, $3, $4::jsonb)`,
			collection, doc.ID(), createdAt, string(raw),
		); err != nil {
			if pkg.IsUniqueViolationError(err) {
				return fmt.Errorf("%w: %s", docstore.ErrDuplicateID, doc.ID())
			}
			return fmt.Errorf("insert %s: %w", doc.ID(), err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PsqlRepo) Update(
	ctx context.Context,
	collection string,
	query docstore.Query,
	patch docstore.Document,
	opts docstore.UpdateOptions,
	now time.Time,
) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bridge.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Bool("multi", opts.Multi),
		attribute.String("mode", opts.Mode.String()),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := matching(ctx, tx, collection, query, true)
	if err != nil {
		return 0, err
	}
	if !opts.Multi && len(rows) > 1 {
		rows = rows[:1]
	}

	for _, rw := range rows {
		updated := docstore.ApplyUpdate(rw.doc, patch, opts.Mode, now)
		raw, err := json.Marshal(updated)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
		}
		if _, err := tx.Exec(
			ctx,
			`UPDATE document SET data = $3::jsonb WHERE collection = $1 AND id = $2`,
			collection, rw.id, string(raw),
		); err != nil {
			return 0, fmt.Errorf("update %s: %w", rw.id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

func (r *PsqlRepo) Remove(ctx context.Context, collection string, query docstore.Query, multi bool) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bridge.remove")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Bool("multi", multi),
	)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := matching(ctx, tx, collection, query, true)
	if err != nil {
		return 0, err
	}
	if !multi && len(rows) > 1 {
		rows = rows[:1]
	}
	if len(rows) == 0 {
		return 0, tx.Commit(ctx)
	}

	ids := make([]string, 0, len(rows))
	for _, rw := range rows {
		ids = append(ids, rw.id)
	}

	tag, err := tx.Exec(
		ctx,
		`DELETE FROM document WHERE collection = $1 AND id = ANY($2)`,
		collection, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PsqlRepo) Clear(ctx context.Context, collection string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.bridge.clear")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", collection))

	tag, err := r.db.Exec(ctx, `DELETE FROM document WHERE collection = $1`, collection)
	if err != nil {
		return 0, fmt.Errorf("clear collection: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
