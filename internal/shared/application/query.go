package application

import "context"

// Query is a read served from the event cache.
type Query interface {
	QueryName() string
}

// QueryHandler answers one query type. A day that is not cached yet is
// loaded from the store on the way.
type QueryHandler[Q Query, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}
