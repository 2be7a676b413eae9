package record

import "github.com/roach88/persist/internal/querysql"

// Option configures a single operation.
type Option func(*callOptions)

type callOptions struct {
	selection querysql.Selection
	conflict  querysql.Conflict
}

func newCallOptions(opts []Option) callOptions {
	o := callOptions{selection: querysql.AllColumns}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSelection sets the columns a fetch variant returns.
// Defaults to querysql.AllColumns.
func WithSelection(sel querysql.Selection) Option {
	return func(o *callOptions) {
		o.selection = sel
	}
}

// WithColumns makes a fetch variant return the given columns only.
func WithColumns(columns ...string) Option {
	return WithSelection(querysql.Columns(columns...))
}

// WithConflict sets the conflict target of an upsert.
func WithConflict(c querysql.Conflict) Option {
	return func(o *callOptions) {
		o.conflict = c
	}
}

// WithConflictTarget makes an upsert resolve conflicts on the given
// columns, which must be the primary key or a unique index.
func WithConflictTarget(columns ...string) Option {
	return WithConflict(querysql.ConflictOn(columns...))
}

// OnConflictKey makes an upsert resolve conflicts on the table's only
// candidate key.
func OnConflictKey() Option {
	return WithConflict(querysql.ConflictOnKey())
}
