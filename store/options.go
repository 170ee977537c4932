package store

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/stevemurr/docstore/metrics"
	"github.com/stevemurr/docstore/query"
	"github.com/stevemurr/docstore/schema"
)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Collector
	schemas *schema.Registry
	layout  Layout
	mode    query.Mode
	newID   func() string
}

func defaultOptions() options {
	return options{
		logger: slog.Default().With("component", "store"),
		layout: DefaultLayout(),
		mode:   query.Permissive,
		newID:  uuid.NewString,
	}
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records persistence metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithSchemas validates documents against r before they are stored.
func WithSchemas(r *schema.Registry) Option {
	return func(o *options) { o.schemas = r }
}

// WithLayout replaces DefaultLayout.
func WithLayout(l Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithStrictQueries rejects unknown query operators and pipeline stages
// instead of ignoring them.
func WithStrictQueries() Option {
	return func(o *options) { o.mode = query.Strict }
}

// WithIDGenerator sets how ids are assigned to keyed documents created
// without one. The default is a random UUID.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}
