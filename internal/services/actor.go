package services

import "context"

type actorKey struct{}

// WithActor records the user on whose behalf the request runs; audit rows
// written under ctx carry it.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
