// Package syncguard marks a context as carrying a write issued by the
// lifecycle engine, so the patient and equipment services persist it as-is
// instead of routing it back through Assign/Unassign.
package syncguard

import "context"

type contextKey struct{}

// With returns a child context carrying the guard token.
func With(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, true)
}

// Active reports whether ctx carries the guard token.
func Active(ctx context.Context) bool {
	v, _ := ctx.Value(contextKey{}).(bool)
	return v
}
