package record

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/persist/internal/container"
	"github.com/roach88/persist/internal/dberr"
	"github.com/roach88/persist/internal/dbvalue"
	"github.com/roach88/persist/internal/querysql"
	"github.com/roach88/persist/internal/schema"
	"github.com/roach88/persist/internal/store"
)

const tracerName = "github.com/roach88/persist/internal/record"

// StatementObserver is called before each statement runs, with the
// operation that issued it.
type StatementObserver func(op string, stmt querysql.Statement)

// DatabaseOption configures a Database.
type DatabaseOption func(*Database)

// WithLogger sets the logger statements are logged to at debug level.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) DatabaseOption {
	return func(db *Database) {
		db.logger = l
	}
}

// WithTracerProvider sets the provider of statement spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) DatabaseOption {
	return func(db *Database) {
		db.tracer = tp.Tracer(tracerName)
	}
}

// WithReturning overrides RETURNING support detection.
func WithReturning(supported bool) DatabaseOption {
	return func(db *Database) {
		db.returning = &supported
	}
}

// WithObserver registers a statement observer.
func WithObserver(o StatementObserver) DatabaseOption {
	return func(db *Database) {
		db.observers = append(db.observers, o)
	}
}

// Database runs record operations against an executor.
//
// It is the handle hooks receive, so they can issue their own statements
// on the same executor. It is not safe for concurrent use unless the
// executor is.
type Database struct {
	exec      store.Executor
	schema    *schema.Resolver
	compiler  *querysql.Compiler
	logger    *slog.Logger
	tracer    trace.Tracer
	observers []StatementObserver

	mu        sync.Mutex
	returning *bool
	version   string
}

// New creates a Database over exec.
func New(exec store.Executor, opts ...DatabaseOption) *Database {
	db := &Database{
		exec:     exec,
		schema:   schema.NewResolver(exec),
		compiler: querysql.NewCompiler(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Schema returns the table resolver. Call Invalidate or Reset on it after
// altering a table.
func (db *Database) Schema() *schema.Resolver {
	return db.schema
}

// Executor returns the underlying executor.
func (db *Database) Executor() store.Executor {
	return db.exec
}

// SupportsReturning reports whether RETURNING clauses can be used.
// The SQLite version is probed once, unless WithReturning was given.
func (db *Database) SupportsReturning(ctx context.Context) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.returning != nil {
		return *db.returning, nil
	}
	ok, version, err := store.SupportsReturning(ctx, db.exec)
	if err != nil {
		return false, fmt.Errorf("probe returning support: %w", err)
	}
	db.returning = &ok
	db.version = version
	return ok, nil
}

func (db *Database) requireReturning(ctx context.Context) error {
	ok, err := db.SupportsReturning(ctx)
	if err != nil {
		return err
	}
	if !ok {
		version := db.version
		if version == "" {
			version = "library"
		}
		return dberr.NewReturningUnsupportedError(version)
	}
	return nil
}

// Exec runs a raw statement. Hooks use it to issue auxiliary writes.
func (db *Database) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.execStatement(ctx, "exec", "", querysql.Statement{SQL: query, Args: args})
}

// Query runs a raw query and returns every row.
func (db *Database) Query(ctx context.Context, query string, args ...any) ([]*container.Container, error) {
	cols, vals, err := db.queryStatement(ctx, "query", "", querysql.Statement{SQL: query, Args: args})
	if err != nil {
		return nil, err
	}
	out := make([]*container.Container, len(vals))
	for i, row := range vals {
		out[i] = store.RowContainer(cols, row)
	}
	return out, nil
}

func (db *Database) execStatement(ctx context.Context, op, table string, stmt querysql.Statement) (sql.Result, error) {
	ctx, span := db.begin(ctx, op, table, stmt)
	defer span.End()

	res, err := db.exec.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		fail(span, err)
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", n))
	}
	return res, nil
}

func (db *Database) queryStatement(ctx context.Context, op, table string, stmt querysql.Statement) ([]string, [][]dbvalue.Value, error) {
	ctx, span := db.begin(ctx, op, table, stmt)
	defer span.End()

	rows, err := db.exec.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		fail(span, err)
		return nil, nil, err
	}
	cols, vals, err := store.ScanValues(rows)
	if err != nil {
		fail(span, err)
		return nil, nil, err
	}
	span.SetAttributes(attribute.Int("db.rows_returned", len(vals)))
	return cols, vals, nil
}

func (db *Database) begin(ctx context.Context, op, table string, stmt querysql.Statement) (context.Context, trace.Span) {
	for _, o := range db.observers {
		o(op, stmt)
	}
	db.logger.DebugContext(ctx, "execute statement",
		"op", op,
		"table", table,
		"sql", stmt.SQL,
		"args", stmt.Args,
	)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "sqlite"),
		attribute.String("db.statement", stmt.SQL),
		attribute.String("db.operation", op),
	}
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	return db.tracer.Start(ctx, "persist."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
