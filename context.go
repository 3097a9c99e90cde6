// (c) Copyright Spanlight Inc. 2022

package spanlight

import (
	"context"

	ot "github.com/opentracing/opentracing-go"
)

type contextKey int8

const activeTransactionKey contextKey = iota

// ContextWithTransaction returns a new context.Context holding a reference to
// the active request transaction span
func ContextWithTransaction(ctx context.Context, tx ot.Span) context.Context {
	return context.WithValue(ctx, activeTransactionKey, tx)
}

// TransactionFromContext retrieves the previously stored transaction span from
// context. If there is no transaction, this method returns false.
func TransactionFromContext(ctx context.Context) (ot.Span, bool) {
	tx, ok := ctx.Value(activeTransactionKey).(ot.Span)
	return tx, ok
}
